package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopforge/jobcore/job"
)

// Logging returns middleware that logs job start and outcome.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (any, error) {
		logger.Info("job started",
			slog.String("job_type", r.Type),
			slog.String("job_id", r.ID.String()),
			slog.String("tenant_id", r.TenantID),
			slog.Int("retry_count", r.RetryCount),
		)

		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start)

		switch {
		case job.IsCancelled(err):
			logger.Info("job stopped on cancellation",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		case err != nil:
			logger.Error("job failed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		default:
			logger.Info("job completed",
				slog.String("job_type", r.Type),
				slog.String("job_id", r.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return res, err
	}
}
