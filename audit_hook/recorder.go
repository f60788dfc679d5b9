package audithook

import (
	"context"
	"log/slog"
)

// LogRecorder writes audit events as structured log lines. Critical events
// are logged at error level, warnings at warn, everything else at info.
type LogRecorder struct {
	logger *slog.Logger
}

// NewLogRecorder returns a Recorder backed by logger.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger.With(slog.String("component", "audit"))}
}

// Record implements Recorder.
func (l *LogRecorder) Record(ctx context.Context, evt *AuditEvent) error {
	level := slog.LevelInfo
	switch evt.Severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityCritical:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("action", evt.Action),
		slog.String("category", evt.Category),
		slog.String("resource", evt.Resource),
		slog.String("resource_id", evt.ResourceID),
		slog.String("outcome", evt.Outcome),
	}
	if evt.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", evt.TenantID))
	}
	if evt.RequesterID != "" {
		attrs = append(attrs, slog.String("requester_id", evt.RequesterID))
	}
	if evt.Reason != "" {
		attrs = append(attrs, slog.String("reason", evt.Reason))
	}
	if len(evt.Metadata) > 0 {
		meta := make([]any, 0, len(evt.Metadata))
		for k, v := range evt.Metadata {
			meta = append(meta, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", meta...))
	}

	l.logger.LogAttrs(ctx, level, "audit", attrs...)
	return nil
}
