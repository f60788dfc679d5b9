package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/queue"
)

// Poller is the polling dispatcher. A single loop looks for at most one
// eligible record per tick and runs it in its own goroutine, bounded by a
// global in-flight ceiling. A second, slower loop forces records stuck in
// cancelling to cancelled.
type Poller struct {
	store    job.Store
	executor *Executor
	limits   *queue.Manager
	logger   *slog.Logger
	now      func() time.Time
	workerID id.WorkerID

	concurrency    int
	pollInterval   time.Duration
	staleThreshold time.Duration
	sweepInterval  time.Duration
	cancelGrace    time.Duration

	// durableActive reports whether the durable queue is serving jobs.
	durableActive func() bool

	// onClaim runs after the poller wins a claim, before the handler.
	onClaim RecordHook

	inFlight atomic.Int32

	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	activeJobs map[string]context.CancelFunc
	activeMu   sync.Mutex
}

var _ Dispatcher = (*Poller)(nil)

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithConcurrency sets the global in-flight ceiling.
func WithConcurrency(n int) PollerOption {
	return func(p *Poller) { p.concurrency = n }
}

// WithPollInterval sets how often the poller looks for an eligible job.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.pollInterval = d }
}

// WithStaleThreshold sets how far behind now a job must be scheduled
// before the poller takes it while the durable queue is active.
func WithStaleThreshold(d time.Duration) PollerOption {
	return func(p *Poller) { p.staleThreshold = d }
}

// WithCancelSweep sets the sweep cadence and the grace window after which
// a cancelling job is forced to cancelled. A zero interval disables the
// sweeper.
func WithCancelSweep(interval, grace time.Duration) PollerOption {
	return func(p *Poller) {
		p.sweepInterval = interval
		p.cancelGrace = grace
	}
}

// WithDurableActive sets the check that decides whether the staleness
// window applies.
func WithDurableActive(fn func() bool) PollerOption {
	return func(p *Poller) { p.durableActive = fn }
}

// WithLimits sets per-type and per-tenant admission limits.
func WithLimits(m *queue.Manager) PollerOption {
	return func(p *Poller) { p.limits = m }
}

// WithClaimHook sets a hook run after the poller claims a record and
// before its handler starts.
func WithClaimHook(h RecordHook) PollerOption {
	return func(p *Poller) { p.onClaim = h }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// WithPollerClock overrides the time source.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) { p.now = now }
}

// NewPoller creates a Poller.
func NewPoller(store job.Store, executor *Executor, opts ...PollerOption) *Poller {
	p := &Poller{
		store:          store,
		executor:       executor,
		logger:         slog.Default(),
		now:            func() time.Time { return time.Now().UTC() },
		workerID:       id.NewWorkerID(),
		concurrency:    5,
		pollInterval:   2 * time.Second,
		staleThreshold: 10 * time.Second,
		sweepInterval:  time.Minute,
		cancelGrace:    5 * time.Minute,
		durableActive:  func() bool { return false },
		activeJobs:     make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the poller's identifier.
func (p *Poller) WorkerID() id.WorkerID { return p.workerID }

// InFlight returns the number of jobs the poller is running.
func (p *Poller) InFlight() int { return int(p.inFlight.Load()) }

// Start launches the poll and sweep loops. It returns immediately.
func (p *Poller) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true
	stop := make(chan struct{})
	p.stopCh = stop

	p.logger.Info("poller starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Duration("poll_interval", p.pollInterval),
	)

	p.wg.Add(1)
	go p.pollLoop(stop)

	if p.sweepInterval > 0 {
		p.wg.Add(1)
		go p.sweepLoop(stop)
	}
	return nil
}

// Stop signals the loops to stop and waits for in-flight jobs. If ctx
// expires first, in-flight handler contexts are cancelled.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stop := p.stopCh
	p.mu.Unlock()

	p.logger.Info("poller stopping", slog.String("worker_id", p.workerID.String()))
	close(stop)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("poller shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}
	return nil
}

func (p *Poller) pollLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := p.dispatchNext(context.Background(), true); err != nil {
				p.logger.Error("poll error", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Poller) sweepLoop(stop <-chan struct{}) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := p.SweepCancelling(context.Background()); err != nil {
				p.logger.Error("cancel sweep error", slog.String("error", err.Error()))
			}
		}
	}
}

// PollOnce runs one synchronous poll: it selects at most one eligible
// record and runs it to completion before returning.
func (p *Poller) PollOnce(ctx context.Context) (bool, error) {
	return p.dispatchNext(ctx, false)
}

// dispatchNext selects the next eligible record and runs it, in a new
// goroutine when async is set. Records whose type or tenant is at its
// limits are skipped so they do not hold back other work.
func (p *Poller) dispatchNext(ctx context.Context, async bool) (bool, error) {
	if p.InFlight() >= p.concurrency {
		return false, nil
	}

	due := p.now()
	if p.durableActive() {
		due = due.Add(-p.staleThreshold)
	}

	var skip job.Exclusion
	for {
		r, err := p.store.NextEligible(ctx, due, skip)
		if err != nil || r == nil {
			return false, err
		}
		if p.limits == nil {
			return p.dispatch(r, async), nil
		}

		switch p.limits.Admit(r.Type, r.TenantID) {
		case queue.Admitted:
			return p.dispatch(r, async), nil
		case queue.TypeLimited:
			skip.Types = append(skip.Types, r.Type)
		default:
			skip.Tenants = append(skip.Tenants, job.TypeTenant{Type: r.Type, TenantID: r.TenantID})
		}
		p.logger.Debug("dispatch deferred by limits",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
			slog.String("tenant_id", r.TenantID),
		)
	}
}

// dispatch runs r, whose limit slot (if any) is already held.
func (p *Poller) dispatch(r *job.Record, async bool) bool {
	p.inFlight.Add(1)
	run := func() bool {
		defer p.inFlight.Add(-1)
		if p.limits != nil {
			defer p.limits.Release(r.Type, r.TenantID)
		}
		return p.run(r.ID)
	}

	if !async {
		return run()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		run()
	}()
	return true
}

func (p *Poller) run(jobID id.JobID) bool {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := jobID.String()
	p.trackJob(key, cancel)
	defer p.untrackJob(key)

	claimed, err := p.claimAndRun(ctx, jobID)
	if err != nil {
		p.logger.Error("poller dispatch failed",
			slog.String("job_id", key),
			slog.String("error", err.Error()),
		)
	}
	return claimed
}

func (p *Poller) claimAndRun(ctx context.Context, jobID id.JobID) (bool, error) {
	r, err := p.executor.Claim(ctx, jobID)
	if err != nil || r == nil {
		return false, err
	}
	if p.onClaim != nil {
		p.onClaim(ctx, r)
	}
	p.executor.Run(ctx, r)
	return true, nil
}

// TryClaimAndRun claims jobID through the shared executor, counting it
// against the poller's in-flight ceiling.
func (p *Poller) TryClaimAndRun(ctx context.Context, jobID id.JobID) (bool, error) {
	p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	return p.claimAndRun(ctx, jobID)
}

// SweepCancelling forces records that have been cancelling for longer than
// the grace window to cancelled. It returns how many were forced.
func (p *Poller) SweepCancelling(ctx context.Context) (int, error) {
	stuck, err := p.store.ListByStatus(ctx, job.StatusCancelling, job.ListOpts{
		UpdatedBefore: p.now().Add(-p.cancelGrace),
	})
	if err != nil {
		return 0, err
	}

	forced := 0
	for _, r := range stuck {
		if _, err := p.executor.Cancel(ctx, r, []job.Status{job.StatusCancelling}, ReasonCancelTimeout); err != nil {
			p.logger.Debug("sweep: record left cancelling before it could be forced",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		forced++
		p.logger.Warn("forced stuck cancellation",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
		)
	}
	return forced, nil
}

func (p *Poller) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Poller) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Poller) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
