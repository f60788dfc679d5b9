package observability_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/shopforge/jobcore/ext"
	"github.com/shopforge/jobcore/id"
	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestRecord() *job.Record {
	return &job.Record{ID: id.NewJobID(), Type: "email.send"}
}

// counterValues collects every Int64 sum keyed by instrument name.
func counterValues(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_JobScheduled(t *testing.T) {
	e, reader := newTestExtension()
	if err := e.OnJobScheduled(context.Background(), newTestRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := counterValues(t, reader)["jobcore.job.scheduled"]; got != 1 {
		t.Errorf("jobcore.job.scheduled: want 1, got %d", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(slog.Default())
	reg.Register(e)

	ctx := context.Background()
	r := newTestRecord()

	reg.EmitJobScheduled(ctx, r)
	reg.EmitJobCompleted(ctx, r, 50*time.Millisecond)
	reg.EmitJobFailed(ctx, r, errors.New("fail"))
	reg.EmitJobRetrying(ctx, r, 1, time.Now())
	reg.EmitJobCancelled(ctx, r)

	values := counterValues(t, reader)
	for _, name := range []string{
		"jobcore.job.scheduled",
		"jobcore.job.completed",
		"jobcore.job.failed",
		"jobcore.job.retried",
		"jobcore.job.cancelled",
	} {
		if values[name] != 1 {
			t.Errorf("%s: want 1, got %d", name, values[name])
		}
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnJobCompleted(context.Background(), newTestRecord(), time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
