package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopforge/jobcore/job"
)

// tracerName is the instrumentation scope name for jobcore tracing.
const tracerName = "github.com/shopforge/jobcore"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span using the global TracerProvider.
//
// Span attributes: jobcore.job.id, jobcore.job.type, jobcore.job.priority,
// jobcore.retry_count, jobcore.tenant_id. A cancelled execution is recorded
// as an event, not as an error.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (any, error) {
		ctx, span := tracer.Start(ctx, "jobcore.job.execute",
			trace.WithAttributes(
				attribute.String("jobcore.job.id", r.ID.String()),
				attribute.String("jobcore.job.type", r.Type),
				attribute.String("jobcore.job.priority", r.Priority.String()),
				attribute.Int("jobcore.retry_count", r.RetryCount),
				attribute.String("jobcore.tenant_id", r.TenantID),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		res, err := next(ctx)
		switch {
		case job.IsCancelled(err):
			span.AddEvent("cancelled")
			span.SetStatus(codes.Ok, "cancelled")
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.SetStatus(codes.Ok, "")
		}

		return res, err
	}
}
