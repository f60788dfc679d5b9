package job

import (
	"fmt"

	"github.com/shopforge/jobcore"
)

// Status represents the lifecycle state of a job record.
type Status string

const (
	// StatusPending means the job waits for its scheduled time and a dispatcher.
	StatusPending Status = "pending"
	// StatusRunning means a dispatcher claimed the job and runs its handler.
	StatusRunning Status = "running"
	// StatusCancelling means cancellation was requested while running; the
	// handler has not yet observed it.
	StatusCancelling Status = "cancelling"
	// StatusCompleted means the handler finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and will not be retried.
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled.
	StatusCancelled Status = "cancelled"
)

// transitions lists the allowed target states per source state.
var transitions = map[Status][]Status{
	StatusPending:    {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:    {StatusCompleted, StatusFailed, StatusPending, StatusCancelling, StatusCancelled},
	StatusCancelling: {StatusCancelled},
}

// IsTerminal reports whether no transition out of s is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCancelling,
		StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine allows from → to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an error wrapping jobcore.ErrInvalidState unless
// every status in from may move to to. Stores call it before applying a
// gated transition.
func CheckTransition(from []Status, to Status) error {
	if len(from) == 0 {
		return fmt.Errorf("%w: no source status for %s", jobcore.ErrInvalidState, to)
	}
	for _, f := range from {
		if !CanTransition(f, to) {
			return fmt.Errorf("%w: %s -> %s", jobcore.ErrInvalidState, f, to)
		}
	}
	return nil
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusPending, StatusRunning, StatusCancelling,
		StatusCompleted, StatusFailed, StatusCancelled,
	}
}
