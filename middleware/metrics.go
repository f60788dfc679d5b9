package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopforge/jobcore/job"
)

// meterName is the instrumentation scope name for jobcore metrics.
const meterName = "github.com/shopforge/jobcore"

// Metrics returns middleware that records per-execution metrics using the
// global OTel MeterProvider. With no provider configured the instruments are
// noops.
//
// Instruments:
//   - jobcore.job.duration (Float64Histogram): execution time in seconds
//   - jobcore.job.executions (Int64Counter): total executions
//
// Both carry job_type and status ("ok", "error" or "cancelled").
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the OTel API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"jobcore.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"jobcore.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, r *job.Record, next Handler) (any, error) {
		start := time.Now()
		res, err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		switch {
		case job.IsCancelled(err):
			status = "cancelled"
		case err != nil:
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("job_type", r.Type),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return res, err
	}
}
