// Package audithook is a jobcore extension that turns job lifecycle events
// into audit trail records.
//
// Every lifecycle hook emits a structured [AuditEvent] through the
// [Recorder] interface. The extension assigns a severity (info for normal
// operations, warning for retries and cancellations, critical for terminal
// failures) and metadata such as the job type, tenant and elapsed time.
//
// # Usage with slog
//
//	orchestrator.WithExtension(audithook.New(audithook.NewLogRecorder(logger)))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobCancelled,
//	    ),
//	)
package audithook
