package relayhook

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shopforge/jobcore/ext"
	"github.com/shopforge/jobcore/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobScheduled = (*Extension)(nil)
	_ ext.JobStarted   = (*Extension)(nil)
	_ ext.JobCompleted = (*Extension)(nil)
	_ ext.JobFailed    = (*Extension)(nil)
	_ ext.JobRetrying  = (*Extension)(nil)
	_ ext.JobCancelled = (*Extension)(nil)
)

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// PublisherFunc is an adapter to use a plain function as a Publisher.
type PublisherFunc func(ctx context.Context, evt *Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// Extension relays job lifecycle events through a Publisher.
type Extension struct {
	publisher Publisher
	enabled   map[string]bool        // nil = all enabled
	payloads  map[string]PayloadFunc // custom payload builders
	now       func() time.Time
}

// New creates an Extension that publishes lifecycle events through p.
func New(p Publisher, opts ...Option) *Extension {
	h := &Extension{
		publisher: p,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "relay-hook" }

// OnJobScheduled implements ext.JobScheduled.
func (h *Extension) OnJobScheduled(ctx context.Context, r *job.Record) error {
	return h.send(ctx, EventJobScheduled, r.TenantID, &jobScheduledPayload{
		jobPayload:  *newJobPayload(r),
		Priority:    r.Priority.String(),
		ScheduledAt: r.ScheduledAt,
	})
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, r *job.Record) error {
	return h.send(ctx, EventJobStarted, r.TenantID, newJobPayload(r))
}

// OnJobCompleted implements ext.JobCompleted.
func (h *Extension) OnJobCompleted(ctx context.Context, r *job.Record, elapsed time.Duration) error {
	return h.send(ctx, EventJobCompleted, r.TenantID, &jobCompletedPayload{
		jobPayload: *newJobPayload(r),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobFailed implements ext.JobFailed.
func (h *Extension) OnJobFailed(ctx context.Context, r *job.Record, jobErr error) error {
	return h.send(ctx, EventJobFailed, r.TenantID, &jobFailedPayload{
		jobPayload: *newJobPayload(r),
		Error:      jobErr.Error(),
		RetryCount: r.RetryCount,
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, r *job.Record, attempt int, nextRunAt time.Time) error {
	return h.send(ctx, EventJobRetrying, r.TenantID, &jobRetryingPayload{
		jobPayload: *newJobPayload(r),
		Attempt:    attempt,
		NextRunAt:  nextRunAt.Format(time.RFC3339),
		Error:      r.LastError,
	})
}

// OnJobCancelled implements ext.JobCancelled.
func (h *Extension) OnJobCancelled(ctx context.Context, r *job.Record) error {
	return h.send(ctx, EventJobCancelled, r.TenantID, &jobCancelledPayload{
		jobPayload: *newJobPayload(r),
		Progress:   r.Progress,
	})
}

// send publishes an event if the event type is enabled.
func (h *Extension) send(ctx context.Context, eventType, tenantID string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	eventID, err := uuid.NewV7()
	if err != nil {
		return err
	}

	return h.publisher.Publish(ctx, &Event{
		ID:         eventID.String(),
		Type:       eventType,
		TenantID:   tenantID,
		OccurredAt: h.now(),
		Data:       data,
	})
}

type jobPayload struct {
	JobID       string `json:"job_id"`
	JobType     string `json:"job_type"`
	RequesterID string `json:"requester_id,omitempty"`
}

func newJobPayload(r *job.Record) *jobPayload {
	return &jobPayload{
		JobID:       r.ID.String(),
		JobType:     r.Type,
		RequesterID: r.RequesterID,
	}
}

type jobScheduledPayload struct {
	jobPayload
	Priority    string    `json:"priority"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

type jobCompletedPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobFailedPayload struct {
	jobPayload
	Error      string `json:"error"`
	RetryCount int    `json:"retry_count"`
}

type jobRetryingPayload struct {
	jobPayload
	Attempt   int    `json:"attempt"`
	NextRunAt string `json:"next_run_at"`
	Error     string `json:"error,omitempty"`
}

type jobCancelledPayload struct {
	jobPayload
	Progress int `json:"progress"`
}
