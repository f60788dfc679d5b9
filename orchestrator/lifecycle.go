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
	"github.com/shopforge/jobcore/queue"
	"github.com/shopforge/jobcore/worker"
)

// Start seals the handler registry, recovers interrupted jobs, starts the
// durable queue when one is configured and reachable, and starts the
// polling dispatcher. It returns once both paths are running.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return nil
	}

	o.registry.Seal()

	if err := o.recover(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	if o.queue != nil {
		if err := o.startDurable(ctx); err != nil {
			o.durableErr.Store(&err)
			o.logger.Warn("durable queue unavailable, using polling dispatcher only",
				slog.String("error", err.Error()),
			)
		} else {
			o.durableErr.Store(nil)
		}
	}

	if err := o.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	o.started = true
	o.logger.Info("orchestrator started",
		slog.Int("job_types", len(o.registry.Types())),
		slog.Bool("durable_queue", o.durableActive.Load()),
	)
	return nil
}

// recover returns jobs left running by a previous process to pending so
// they are retried rather than lost, and finalizes jobs left cancelling.
// It assumes no other process is executing jobs against the same store.
func (o *Orchestrator) recover(ctx context.Context) error {
	running, err := o.store.ListByStatus(ctx, job.StatusRunning, job.ListOpts{})
	if err != nil {
		return err
	}
	for _, r := range running {
		if _, err := o.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{
			Status: job.StatusPending,
		}); err != nil {
			o.logger.Warn("failed to recover interrupted job",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		o.logger.Info("recovered interrupted job",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
		)
	}

	cancelling, err := o.store.ListByStatus(ctx, job.StatusCancelling, job.ListOpts{})
	if err != nil {
		return err
	}
	for _, r := range cancelling {
		if _, err := o.executor.Cancel(ctx, r, []job.Status{job.StatusCancelling}, ""); err != nil {
			o.logger.Warn("failed to finalize interrupted cancellation",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// startDurable pings and starts the durable queue, then hands it every
// pending job. A returned error wraps jobcore.ErrQueueUnavailable and
// leaves the polling dispatcher in sole charge.
func (o *Orchestrator) startDurable(ctx context.Context) error {
	if err := o.queue.Ping(ctx); err != nil {
		if errors.Is(err, jobcore.ErrQueueUnavailable) {
			return fmt.Errorf("ping: %w", err)
		}
		return fmt.Errorf("%w: ping: %w", jobcore.ErrQueueUnavailable, err)
	}

	if err := o.queue.Start(ctx, o.groups(), o.queueDispatcher.Process, o.handleStall); err != nil {
		return fmt.Errorf("%w: start: %w", jobcore.ErrQueueUnavailable, err)
	}
	o.durableActive.Store(true)

	pending, err := o.store.ListByStatus(ctx, job.StatusPending, job.ListOpts{})
	if err != nil {
		o.logger.Warn("failed to list pending jobs for the durable queue",
			slog.String("error", err.Error()),
		)
		return nil
	}
	for _, r := range pending {
		o.enqueueDurable(ctx, r)
	}
	return nil
}

// Stop stops both dispatch paths, waiting up to the configured shutdown
// timeout for in-flight jobs, and emits the Shutdown hook.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.started {
		return nil
	}
	o.started = false

	stopCtx, cancel := context.WithTimeout(ctx, o.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := o.poller.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stop poller: %w", err))
	}
	if o.queue != nil && o.durableActive.Load() {
		if err := o.queue.Stop(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop durable queue: %w", err))
		}
		o.durableActive.Store(false)
	}

	o.extensions.EmitShutdown(ctx)
	o.logger.Info("orchestrator stopped")
	return errors.Join(errs...)
}

// handleStall receives durable entries whose worker lease expired. A job
// still running is failed through the standard retry policy; a job that
// is pending again is handed back to the queue.
func (o *Orchestrator) handleStall(ctx context.Context, e queue.Entry) {
	jobID, err := id.ParseJobID(e.JobID)
	if err != nil {
		return
	}
	r, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		o.logger.Warn("stalled entry lookup failed",
			slog.String("job_id", e.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	switch r.Status {
	case job.StatusRunning:
		o.executor.Fail(ctx, r, errors.New(worker.ReasonStalled))
	case job.StatusCancelling:
		if _, err := o.executor.Cancel(ctx, r, []job.Status{job.StatusCancelling}, worker.ReasonStalled); err != nil {
			o.logger.Debug("stalled cancellation already finalized", slog.String("job_id", e.JobID))
		}
	case job.StatusPending:
		o.enqueueDurable(ctx, r)
	}
}

// scheduleNextOccurrence is the executor's completion hook. A completed
// record carrying the recurrence marker schedules its successor with the
// same interval, payload, priority, tenant, requester and retry budget.
func (o *Orchestrator) scheduleNextOccurrence(ctx context.Context, r *job.Record) {
	if !r.IsRecurring() {
		return
	}
	name := r.IntervalName()
	if !interval.Valid(name) {
		o.logger.Warn("recurring job has an unknown interval, not rescheduling",
			slog.String("job_id", r.ID.String()),
			slog.String("interval", name),
		)
		return
	}

	meta := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		meta[k] = v
	}
	meta[job.MetaRecurrenceOf] = r.ID.String()

	var payload any
	if len(r.Payload) > 0 {
		payload = json.RawMessage(r.Payload)
	}

	next, err := o.ScheduleRecurringJob(ctx, r.Type, payload, name,
		job.WithPriority(r.Priority),
		job.WithMaxRetries(r.MaxRetries),
		job.WithTenant(r.TenantID),
		job.WithRequester(r.RequesterID),
		job.WithMetadata(meta),
	)
	if err != nil {
		o.logger.Error("failed to schedule next occurrence",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
			slog.String("error", err.Error()),
		)
		return
	}
	o.logger.Info("next occurrence scheduled",
		slog.String("job_id", next.ID.String()),
		slog.String("previous_id", r.ID.String()),
		slog.Time("scheduled_at", next.ScheduledAt),
	)
}
