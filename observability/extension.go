package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopforge/jobcore/ext"
	"github.com/shopforge/jobcore/job"
)

const meterName = "github.com/shopforge/jobcore/observability"

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobScheduled = (*MetricsExtension)(nil)
	_ ext.JobCompleted = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobRetrying  = (*MetricsExtension)(nil)
	_ ext.JobCancelled = (*MetricsExtension)(nil)
)

// MetricsExtension counts lifecycle events per job type.
type MetricsExtension struct {
	JobScheduled metric.Int64Counter
	JobCompleted metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobRetried   metric.Int64Counter
	JobCancelled metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on the given meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// The OTel API returns a noop instrument alongside any error.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit("{job}"))
		return c
	}
	return &MetricsExtension{
		JobScheduled: counter("jobcore.job.scheduled", "Jobs persisted by a schedule request"),
		JobCompleted: counter("jobcore.job.completed", "Jobs that completed successfully"),
		JobFailed:    counter("jobcore.job.failed", "Jobs that failed permanently"),
		JobRetried:   counter("jobcore.job.retried", "Failed executions rescheduled for retry"),
		JobCancelled: counter("jobcore.job.cancelled", "Jobs that reached cancelled"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func typeAttr(r *job.Record) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", r.Type))
}

// OnJobScheduled implements ext.JobScheduled.
func (m *MetricsExtension) OnJobScheduled(ctx context.Context, r *job.Record) error {
	m.JobScheduled.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobCompleted implements ext.JobCompleted.
func (m *MetricsExtension) OnJobCompleted(ctx context.Context, r *job.Record, _ time.Duration) error {
	m.JobCompleted.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, r *job.Record, _ error) error {
	m.JobFailed.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, r *job.Record, _ int, _ time.Time) error {
	m.JobRetried.Add(ctx, 1, typeAttr(r))
	return nil
}

// OnJobCancelled implements ext.JobCancelled.
func (m *MetricsExtension) OnJobCancelled(ctx context.Context, r *job.Record) error {
	m.JobCancelled.Add(ctx, 1, typeAttr(r))
	return nil
}
