// Package backoff provides retry delay strategies for failed jobs.
// All strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// DefaultSchedule is the retry delay table used when none is configured.
var DefaultSchedule = []time.Duration{
	5 * time.Second,
	30 * time.Second,
	2 * time.Minute,
	10 * time.Minute,
	30 * time.Minute,
}

// Table looks the delay up by attempt number. Attempts past the end of the
// table reuse the last entry.
type Table struct {
	Steps []time.Duration
}

// NewTable creates a table strategy. The steps slice is copied.
func NewTable(steps ...time.Duration) *Table {
	cp := make([]time.Duration, len(steps))
	copy(cp, steps)
	return &Table{Steps: cp}
}

// Delay returns Steps[attempt-1], clamped to the table bounds.
func (t *Table) Delay(attempt int) time.Duration {
	if len(t.Steps) == 0 {
		return 0
	}
	i := attempt - 1
	if i < 0 {
		i = 0
	}
	if i >= len(t.Steps) {
		i = len(t.Steps) - 1
	}
	return t.Steps[i]
}

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && (d > e.Max || d <= 0) {
		return e.Max
	}
	return d
}

// DefaultStrategy returns the table strategy over DefaultSchedule.
func DefaultStrategy() Strategy {
	return NewTable(DefaultSchedule...)
}
