// Package worker provides the job execution engine: an Executor shared by
// both dispatch paths, the polling Poller, and the QueueDispatcher that
// serves durable queue deliveries.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopforge/jobcore"
	"github.com/shopforge/jobcore/backoff"
	"github.com/shopforge/jobcore/ext"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/middleware"
)

// Synthetic failure reasons written by the executor.
const (
	ReasonUnknownType   = "unknown job type"
	ReasonCancelTimeout = "cancellation timed out"
	ReasonStalled       = "job stalled: worker lease expired"
)

// Dispatcher claims a job and runs it. Only the caller whose claim wins the
// store's pending→running transition runs the handler; every other caller
// observes claimed=false.
type Dispatcher interface {
	TryClaimAndRun(ctx context.Context, jobID id.JobID) (claimed bool, err error)
}

// RecordHook is called with the final record after a lifecycle transition.
type RecordHook func(ctx context.Context, r *job.Record)

// Executor claims records, runs their handler through middleware, and
// finalizes the outcome: completion, cancellation, retry or permanent
// failure.
type Executor struct {
	store      job.Store
	registry   *job.Registry
	extensions *ext.Registry
	backoff    backoff.Strategy
	mw         middleware.Middleware
	logger     *slog.Logger
	now        func() time.Time

	onCompleted RecordHook
	onRetry     RecordHook
}

var _ Dispatcher = (*Executor)(nil)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithExtensions sets the lifecycle hook registry.
func WithExtensions(r *ext.Registry) ExecutorOption {
	return func(e *Executor) { e.extensions = r }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) ExecutorOption {
	return func(e *Executor) { e.backoff = s }
}

// WithMiddleware sets the middleware applied around every handler call.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithCompletionHook is called after a job completes successfully.
func WithCompletionHook(h RecordHook) ExecutorOption {
	return func(e *Executor) { e.onCompleted = h }
}

// WithRetryHook is called after a failed job is returned to pending.
func WithRetryHook(h RecordHook) ExecutorOption {
	return func(e *Executor) { e.onRetry = h }
}

// NewExecutor creates an Executor.
func NewExecutor(store job.Store, registry *job.Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		registry: registry,
		backoff:  backoff.DefaultStrategy(),
		mw:       middleware.Chain(),
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(e.logger)
	}
	return e
}

// TryClaimAndRun claims jobID and, if the claim wins, runs it to a final
// outcome before returning. Handler failures are recorded on the job, not
// returned; err reports only store failures around the claim.
func (e *Executor) TryClaimAndRun(ctx context.Context, jobID id.JobID) (bool, error) {
	r, err := e.Claim(ctx, jobID)
	if err != nil || r == nil {
		return false, err
	}
	e.Run(ctx, r)
	return true, nil
}

// Claim moves a due pending record to running and returns it. It returns
// nil when the record is not claimable: not pending, not yet due, or
// claimed by someone else. A cancelling record belongs to the handler
// still running it; the cancel sweeper, stall handling and startup
// recovery finalize it if that handler is gone.
func (e *Executor) Claim(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	r, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", jobID, err)
	}
	if r.Status != job.StatusPending {
		return nil, nil
	}

	now := e.now()
	if r.ScheduledAt.After(now) {
		return nil, nil
	}

	claimed, err := e.store.Transition(ctx, jobID, []job.Status{job.StatusPending}, job.Patch{
		Status:    job.StatusRunning,
		StartedAt: &now,
	})
	if errors.Is(err, jobcore.ErrInvalidState) {
		e.logger.Debug("claim lost",
			slog.String("job_id", jobID.String()),
			slog.String("job_type", r.Type),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", jobID, err)
	}

	e.extensions.EmitJobStarted(ctx, claimed)
	return claimed, nil
}

// Run executes a claimed (running) record and finalizes it.
func (e *Executor) Run(ctx context.Context, r *job.Record) {
	// Finalization must land even if ctx is cancelled by shutdown.
	fctx := context.WithoutCancel(ctx)

	factory, err := e.registry.Resolve(r.Type)
	if err != nil {
		e.failPermanently(fctx, r, errors.New(ReasonUnknownType))
		return
	}

	handler, err := factory(r)
	if err != nil {
		e.Fail(fctx, r, fmt.Errorf("build handler: %w", err))
		return
	}

	start := time.Now()
	terminal := func(ctx context.Context) (any, error) {
		return handler.Execute(ctx, e.progressFunc(ctx, r))
	}
	res, runErr := e.mw(ctx, r, terminal)
	elapsed := time.Since(start)

	result := e.encodeResult(r, res)

	switch {
	case runErr == nil:
		e.complete(fctx, r, result, elapsed)
	case job.IsCancelled(runErr):
		e.finalizeCancelled(fctx, r, []job.Status{job.StatusRunning, job.StatusCancelling}, result, "")
	default:
		e.Fail(fctx, r, runErr)
	}
}

// progressFunc builds the callback handed to the handler. Each call
// re-reads the record; once a cancellation request is visible it returns
// job.ErrCancelled and stops persisting progress.
func (e *Executor) progressFunc(ctx context.Context, r *job.Record) job.Progress {
	return func(percent int, message string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		percent = min(max(percent, 0), 100)

		cur, err := e.store.GetJob(ctx, r.ID)
		if err != nil {
			e.logger.Warn("progress: status check failed",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
		} else if cur.Status == job.StatusCancelling || cur.Status == job.StatusCancelled {
			return job.ErrCancelled
		}

		if err := e.store.UpdateProgress(ctx, r.ID, percent, message); err != nil {
			e.logger.Warn("progress: update failed",
				slog.String("job_id", r.ID.String()),
				slog.String("error", err.Error()),
			)
			return nil
		}
		r.Progress = percent
		r.ProgressMessage = message
		return nil
	}
}

// encodeResult converts a handler result to JSON. A result that cannot be
// encoded is dropped with a warning rather than failing finished work.
func (e *Executor) encodeResult(r *job.Record, res any) []byte {
	if res == nil {
		return nil
	}
	switch v := res.(type) {
	case json.RawMessage:
		return v
	case []byte:
		if json.Valid(v) {
			return v
		}
	}
	b, err := json.Marshal(res)
	if err != nil {
		e.logger.Warn("result not encodable, dropping",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return b
}

// complete marks a running record completed. If a cancellation request
// arrived while the handler was finishing, the record is finalized as
// cancelled instead, keeping the result.
func (e *Executor) complete(ctx context.Context, r *job.Record, result []byte, elapsed time.Duration) {
	now := e.now()
	progress := 100
	done, err := e.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{
		Status:      job.StatusCompleted,
		CompletedAt: &now,
		Progress:    &progress,
		Result:      result,
	})
	if errors.Is(err, jobcore.ErrInvalidState) {
		e.finalizeCancelled(ctx, r, []job.Status{job.StatusCancelling}, result, "")
		return
	}
	if err != nil {
		e.logger.Error("failed to mark job completed",
			slog.String("job_id", r.ID.String()),
			slog.String("job_type", r.Type),
			slog.String("error", err.Error()),
		)
		return
	}

	e.writeHistory(ctx, done, job.StatusCompleted, result, "", done.RetryCount)
	e.extensions.EmitJobCompleted(ctx, done, elapsed)

	if e.onCompleted != nil {
		e.onCompleted(ctx, done)
	}
}

// Fail applies the retry policy to a running record: back to pending with
// a backoff delay while attempts remain, otherwise failed. Every call writes
// a history row. A record that moved to cancelling is finalized as
// cancelled instead.
func (e *Executor) Fail(ctx context.Context, r *job.Record, cause error) {
	attempt := r.RetryCount + 1
	if attempt > r.MaxRetries {
		e.failPermanently(ctx, r, cause)
		return
	}

	now := e.now()
	delay := e.backoff.Delay(attempt)
	next := now.Add(delay)
	msg := cause.Error()

	retried, err := e.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{
		Status:      job.StatusPending,
		ScheduledAt: &next,
		RetryCount:  &attempt,
		LastError:   &msg,
	})
	if errors.Is(err, jobcore.ErrInvalidState) {
		e.finalizeCancelled(ctx, r, []job.Status{job.StatusCancelling}, nil, msg)
		return
	}
	if err != nil {
		e.logger.Error("failed to reschedule job for retry",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	e.writeHistory(ctx, retried, job.StatusFailed, nil, msg, attempt)
	e.extensions.EmitJobRetrying(ctx, retried, attempt, next)

	e.logger.Info("job scheduled for retry",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Int("attempt", attempt),
		slog.Int("max_retries", r.MaxRetries),
		slog.Duration("delay", delay),
	)

	if e.onRetry != nil {
		e.onRetry(ctx, retried)
	}
}

// failPermanently marks a running record failed. retry_count is left as is,
// so an exhausted record keeps retry_count = max_retries.
func (e *Executor) failPermanently(ctx context.Context, r *job.Record, cause error) {
	now := e.now()
	msg := cause.Error()

	// No retry is left for a permanent failure.
	exhausted := r.MaxRetries
	failed, err := e.store.Transition(ctx, r.ID, []job.Status{job.StatusRunning}, job.Patch{
		Status:     job.StatusFailed,
		FailedAt:   &now,
		RetryCount: &exhausted,
		LastError:  &msg,
	})
	if errors.Is(err, jobcore.ErrInvalidState) {
		e.finalizeCancelled(ctx, r, []job.Status{job.StatusCancelling}, nil, msg)
		return
	}
	if err != nil {
		e.logger.Error("failed to mark job failed",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	e.writeHistory(ctx, failed, job.StatusFailed, nil, msg, r.RetryCount+1)
	e.extensions.EmitJobFailed(ctx, failed, cause)

	e.logger.Warn("job failed permanently",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Int("retry_count", failed.RetryCount),
		slog.String("error", msg),
	)
}

// Cancel moves a record in one of from to cancelled, writes history and
// emits JobCancelled. reason, if set, is stored as last_error.
func (e *Executor) Cancel(ctx context.Context, r *job.Record, from []job.Status, reason string) (*job.Record, error) {
	return e.cancel(ctx, r, from, nil, reason)
}

func (e *Executor) finalizeCancelled(ctx context.Context, r *job.Record, from []job.Status, result []byte, reason string) {
	if _, err := e.cancel(ctx, r, from, result, reason); err != nil {
		e.logger.Error("failed to finalize cancelled job",
			slog.String("job_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Executor) cancel(ctx context.Context, r *job.Record, from []job.Status, result []byte, reason string) (*job.Record, error) {
	now := e.now()
	p := job.Patch{
		Status:      job.StatusCancelled,
		CancelledAt: &now,
		Result:      result,
	}
	if reason != "" {
		p.LastError = &reason
	}

	cancelled, err := e.store.Transition(ctx, r.ID, from, p)
	if err != nil {
		return nil, err
	}

	e.writeHistory(ctx, cancelled, job.StatusCancelled, result, reason, cancelled.RetryCount)
	e.extensions.EmitJobCancelled(ctx, cancelled)

	e.logger.Info("job cancelled",
		slog.String("job_id", r.ID.String()),
		slog.String("job_type", r.Type),
		slog.Int("progress", cancelled.Progress),
	)
	return cancelled, nil
}

// writeHistory appends an audit row. Failures are logged and swallowed.
func (e *Executor) writeHistory(ctx context.Context, r *job.Record, status job.Status, result []byte, errMsg string, retryCount int) {
	h := &job.HistoryEntry{
		ID:         id.NewHistoryID(),
		JobID:      r.ID,
		Status:     status,
		Result:     result,
		Error:      errMsg,
		RetryCount: retryCount,
		ExecutedAt: e.now(),
	}
	if err := e.store.InsertHistory(ctx, h); err != nil {
		e.logger.Warn("failed to write job history",
			slog.String("job_id", r.ID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}
