// Package ext defines the extension system for jobcore.
// Extensions are notified of job lifecycle events and can react to them.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/shopforge/jobcore/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobScheduled is called after a record is persisted by a schedule request.
type JobScheduled interface {
	OnJobScheduled(ctx context.Context, r *job.Record) error
}

// JobStarted is called after a dispatcher claims a job and before its
// handler runs.
type JobStarted interface {
	OnJobStarted(ctx context.Context, r *job.Record) error
}

// JobCompleted is called after a job finishes successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error
}

// JobFailed is called when a job fails permanently.
type JobFailed interface {
	OnJobFailed(ctx context.Context, r *job.Record, err error) error
}

// JobRetrying is called when a job fails but is scheduled for retry.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, r *job.Record, attempt int, nextRunAt time.Time) error
}

// JobCancelled is called when a job reaches cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, r *job.Record) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
