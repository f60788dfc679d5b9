package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/queue"
)

// QueueDispatcher serves durable queue deliveries. Its Process method is
// the queue.ProcessFunc handed to the adapter; the claim and run go through
// the same Executor the Poller uses.
type QueueDispatcher struct {
	store    job.Store
	executor *Executor
	queue    queue.Adapter
	logger   *slog.Logger
	now      func() time.Time
}

var _ Dispatcher = (*QueueDispatcher)(nil)

// NewQueueDispatcher creates a QueueDispatcher. q is used to re-enqueue
// deliveries that arrive before their job is due.
func NewQueueDispatcher(store job.Store, executor *Executor, q queue.Adapter, logger *slog.Logger) *QueueDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueDispatcher{
		store:    store,
		executor: executor,
		queue:    q,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Process handles one delivery.
func (d *QueueDispatcher) Process(ctx context.Context, e queue.Entry) error {
	jobID, err := id.ParseJobID(e.JobID)
	if err != nil {
		d.logger.Warn("durable entry with invalid job id dropped", slog.String("job_id", e.JobID))
		return nil
	}

	r, err := d.store.GetJob(ctx, jobID)
	if errors.Is(err, jobcore.ErrJobNotFound) {
		d.logger.Warn("durable entry for missing job dropped", slog.String("job_id", e.JobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load job %s: %w", e.JobID, err)
	}

	// A retry moved scheduled_at past this delivery; wait for it.
	if r.Status == job.StatusPending && r.ScheduledAt.After(d.now()) {
		e.ReadyAt = r.ScheduledAt
		e.Priority = queue.MapPriority(r.Priority)
		if err := d.queue.Enqueue(ctx, e); err != nil {
			return fmt.Errorf("re-enqueue early delivery %s: %w", e.JobID, err)
		}
		return nil
	}

	claimed, err := d.TryClaimAndRun(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		d.logger.Debug("durable delivery not claimed",
			slog.String("job_id", e.JobID),
			slog.String("status", string(r.Status)),
		)
	}
	return nil
}

// TryClaimAndRun implements Dispatcher.
func (d *QueueDispatcher) TryClaimAndRun(ctx context.Context, jobID id.JobID) (bool, error) {
	return d.executor.TryClaimAndRun(ctx, jobID)
}
