package jobcore

import "time"

// Config holds the tunables of the orchestrator and its dispatch paths.
type Config struct {
	// Concurrency is the polling dispatcher's global in-flight ceiling.
	Concurrency int

	// PollInterval is how often the polling dispatcher looks for an
	// eligible job.
	PollInterval time.Duration

	// StaleThreshold delays polling eligibility while the durable queue is
	// active, so the poller only picks up jobs the queue missed.
	StaleThreshold time.Duration

	// CancelSweepInterval is how often jobs stuck in cancelling are swept.
	CancelSweepInterval time.Duration

	// CancelGrace is how long a job may stay in cancelling before it is
	// forced to cancelled.
	CancelGrace time.Duration

	// QueueConcurrency is the default worker count of each durable queue
	// group (one group per job type).
	QueueConcurrency int

	// StallTimeout is the durable queue lease. A worker that stops
	// heartbeating for longer is presumed dead and its job is failed
	// through the standard retry policy.
	StallTimeout time.Duration

	// DefaultMaxRetries applies when a schedule request does not set one.
	DefaultMaxRetries int

	// ShutdownTimeout bounds how long Stop waits for in-flight jobs.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:         5,
		PollInterval:        2 * time.Second,
		StaleThreshold:      10 * time.Second,
		CancelSweepInterval: 1 * time.Minute,
		CancelGrace:         5 * time.Minute,
		QueueConcurrency:    2,
		StallTimeout:        10 * time.Minute,
		DefaultMaxRetries:   3,
		ShutdownTimeout:     30 * time.Second,
	}
}
