package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/interval"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/scope"
	"github.com/shopforge/jobcore/worker"
)

// cancelAttempts bounds CancelJob's retries when the record changes status
// between the read and the gated write.
const cancelAttempts = 3

// Details is a record together with its execution history.
type Details struct {
	Record  *job.Record         `json:"record"`
	History []*job.HistoryEntry `json:"history"`
}

// ScheduleJob persists a pending record for jobType and hands it to the
// durable queue when one is active. payload is JSON-encoded; []byte and
// json.RawMessage must already be valid JSON.
//
// An unregistered jobType is still persisted, immediately failed with
// last_error "unknown job type" and no retries left, and returned together
// with an error wrapping job.ErrUnknownJobType. An out-of-range priority is
// rejected with job.ErrInvalidPriority.
func (o *Orchestrator) ScheduleJob(ctx context.Context, jobType string, payload any, opts ...job.ScheduleOption) (*job.Record, error) {
	if jobType == "" {
		return nil, errors.New("jobcore: job type is required")
	}
	data, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for job %q: %w", jobType, err)
	}

	so := job.DefaultScheduleOptions()
	for _, opt := range opts {
		opt(&so)
	}
	if !so.Priority.Valid() {
		return nil, fmt.Errorf("schedule job %q: %w", jobType, job.ErrInvalidPriority)
	}
	if so.MaxRetries < 0 {
		so.MaxRetries = o.config.DefaultMaxRetries
	}
	tenantID, requesterID := scope.Capture(ctx)
	if so.TenantID == "" {
		so.TenantID = tenantID
	}
	if so.RequesterID == "" {
		so.RequesterID = requesterID
	}

	now := o.now()
	r := &job.Record{
		Entity:      jobcore.Entity{CreatedAt: now, UpdatedAt: now},
		ID:          id.NewJobID(),
		Type:        jobType,
		Payload:     data,
		Priority:    so.Priority,
		Status:      job.StatusPending,
		ScheduledAt: now.Add(max(so.Delay, 0)),
		MaxRetries:  so.MaxRetries,
		TenantID:    so.TenantID,
		RequesterID: so.RequesterID,
		Metadata:    so.Metadata,
	}

	known := o.registry.Has(jobType)
	if !known {
		r.Status = job.StatusFailed
		r.FailedAt = &now
		r.RetryCount = r.MaxRetries
		r.LastError = worker.ReasonUnknownType
	}

	if err := o.store.InsertJob(ctx, r); err != nil {
		return nil, fmt.Errorf("schedule job %q: %w", jobType, err)
	}

	if !known {
		o.rejectUnknown(ctx, r)
		return r, fmt.Errorf("schedule job %q: %w", jobType, job.ErrUnknownJobType)
	}

	o.extensions.EmitJobScheduled(ctx, r)
	o.enqueueDurable(ctx, r)

	o.logger.Debug("job scheduled",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", jobType),
		slog.String("priority", r.Priority.String()),
		slog.Time("scheduled_at", r.ScheduledAt),
	)
	return r, nil
}

func (o *Orchestrator) rejectUnknown(ctx context.Context, r *job.Record) {
	h := &job.HistoryEntry{
		ID:         id.NewHistoryID(),
		JobID:      r.ID,
		Status:     job.StatusFailed,
		Error:      r.LastError,
		RetryCount: r.RetryCount,
		ExecutedAt: o.now(),
	}
	if err := o.store.InsertHistory(ctx, h); err != nil {
		o.logger.Warn("failed to write job history",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	o.extensions.EmitJobFailed(ctx, r, job.ErrUnknownJobType)
	o.logger.Warn("job scheduled with unknown type",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
	)
}

// ScheduleRecurringJob schedules the first occurrence of a recurring job at
// the next instant of intervalName. Each successful completion schedules
// the following occurrence with the same interval. Any delay option is
// overridden by the interval.
func (o *Orchestrator) ScheduleRecurringJob(ctx context.Context, jobType string, payload any, intervalName string, opts ...job.ScheduleOption) (*job.Record, error) {
	now := o.now()
	next, err := interval.Next(intervalName, now)
	if err != nil {
		return nil, err
	}

	all := make([]job.ScheduleOption, 0, len(opts)+2)
	all = append(all, opts...)
	all = append(all,
		job.WithDelay(next.Sub(now)),
		job.WithMetadata(map[string]any{
			job.MetaRecurring: true,
			job.MetaInterval:  intervalName,
		}),
	)
	return o.ScheduleJob(ctx, jobType, payload, all...)
}

// CancelJob requests cancellation. A pending job is cancelled immediately;
// a running job moves to cancelling and its handler observes the request at
// its next progress call. Cancelling a job already in cancelling returns it
// unchanged. Terminal jobs return jobcore.ErrInvalidState.
func (o *Orchestrator) CancelJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	for range cancelAttempts {
		r, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		switch r.Status {
		case job.StatusCompleted, job.StatusFailed, job.StatusCancelled:
			return r, fmt.Errorf("cancel job %s in status %s: %w", jobID, r.Status, jobcore.ErrInvalidState)

		case job.StatusCancelling:
			return r, nil

		case job.StatusPending:
			cancelled, err := o.executor.Cancel(ctx, r, []job.Status{job.StatusPending}, "")
			if errors.Is(err, jobcore.ErrInvalidState) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
			}
			o.removeDurable(ctx, cancelled)
			return cancelled, nil

		case job.StatusRunning:
			requested, err := o.store.Transition(ctx, jobID, []job.Status{job.StatusRunning}, job.Patch{
				Status: job.StatusCancelling,
			})
			if errors.Is(err, jobcore.ErrInvalidState) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("cancel job %s: %w", jobID, err)
			}
			o.logger.Info("cancellation requested",
				slog.String("job_id", jobID.String()),
				slog.String("job_type", requested.Type),
			)
			return requested, nil
		}
	}
	return nil, fmt.Errorf("cancel job %s: status kept changing: %w", jobID, jobcore.ErrInvalidState)
}

func (o *Orchestrator) removeDurable(ctx context.Context, r *job.Record) {
	if o.queue == nil || !o.durableActive.Load() {
		return
	}
	if _, err := o.queue.Remove(ctx, r.Type, r.ID.String()); err != nil {
		o.logger.Debug("durable remove failed",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// GetJobStatus returns the current status of a job.
func (o *Orchestrator) GetJobStatus(ctx context.Context, jobID id.JobID) (job.Status, error) {
	r, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return r.Status, nil
}

// GetJobDetails returns a job and its history, oldest entry first.
func (o *Orchestrator) GetJobDetails(ctx context.Context, jobID id.JobID) (*Details, error) {
	r, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	history, err := o.store.ListHistory(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("job history %s: %w", jobID, err)
	}
	return &Details{Record: r, History: history}, nil
}

// GetStatistics aggregates jobs created within tr.
func (o *Orchestrator) GetStatistics(ctx context.Context, tr job.TimeRange) (*job.Stats, error) {
	return o.store.Stats(ctx, tr)
}

func encodePayload(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return v, nil
	case []byte:
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid JSON")
		}
		return v, nil
	default:
		return json.Marshal(payload)
	}
}
