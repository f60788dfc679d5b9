package queue

import (
	"context"
	"time"

	"github.com/shopforge/jobcore/job"
)

// Entry is the unit of work carried by the durable queue. It references the
// job record by ID; the record in the store stays the source of truth.
type Entry struct {
	JobID      string    `msgpack:"job_id"`
	JobType    string    `msgpack:"job_type"`
	TenantID   string    `msgpack:"tenant_id,omitempty"`
	Priority   int       `msgpack:"priority"`
	ReadyAt    time.Time `msgpack:"ready_at"`
	EnqueuedAt time.Time `msgpack:"enqueued_at"`
	// Deliveries counts how many times the entry was handed to a worker.
	Deliveries int `msgpack:"deliveries"`
}

// NewEntry builds the durable entry for a record, ready at its scheduled
// time.
func NewEntry(r *job.Record, now time.Time) Entry {
	return Entry{
		JobID:      r.ID.String(),
		JobType:    r.Type,
		TenantID:   r.TenantID,
		Priority:   MapPriority(r.Priority),
		ReadyAt:    r.ScheduledAt,
		EnqueuedAt: now,
	}
}

// Durable priority values. Lower numbers are served first.
const (
	PriorityUrgent = 1
	PriorityHigh   = 5
	PriorityNormal = 10
	PriorityLow    = 20
)

// MapPriority converts a record priority to the durable queue's numeric
// priority.
func MapPriority(p job.Priority) int {
	switch p {
	case job.PriorityUrgent:
		return PriorityUrgent
	case job.PriorityHigh:
		return PriorityHigh
	case job.PriorityLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ProcessFunc handles one delivered entry. A returned error is logged by the
// adapter; retry policy is owned by the job record, not the queue.
type ProcessFunc func(ctx context.Context, e Entry) error

// StallFunc is called for an entry whose worker lease expired.
type StallFunc func(ctx context.Context, e Entry)

// Adapter is the durable queue contract.
type Adapter interface {
	// Enqueue adds or replaces the entry for e.JobID.
	Enqueue(ctx context.Context, e Entry) error

	// Remove deletes a waiting entry. It reports false when the entry was
	// not waiting (already delivered or never enqueued).
	Remove(ctx context.Context, jobType, jobID string) (bool, error)

	// Start launches one worker group per config. It returns once the
	// groups are running.
	Start(ctx context.Context, groups []Config, process ProcessFunc, stall StallFunc) error

	// Stop stops all worker groups and waits for in-flight entries.
	Stop(ctx context.Context) error

	// Ping checks connectivity to the queue backend.
	Ping(ctx context.Context) error
}
