// Package job defines the job record, its state machine, the handler
// contract, the handler registry and the store interface.
//
// # Job Record
//
// A [Record] is one scheduled unit of work. It progresses through:
//
//	pending → running → completed
//	pending → running → pending (retry with backoff)
//	pending → running → failed (retries exhausted)
//	pending → running → cancelling → cancelled
//	pending → running → cancelled (handler observed cancellation)
//	pending → cancelled
//
// completed, failed and cancelled are terminal. [CanTransition] encodes the
// table; stores apply transitions only when the record's current status is
// one of the expected ones, which is what keeps two dispatch paths from
// running the same job.
//
// # Handlers
//
// A [Factory] builds a [Handler] from the record it will run. The handler's
// Execute receives a [Progress] callback. Handlers MUST call it at bounded
// intervals on long operations: it persists progress and returns
// [ErrCancelled] once a cancellation request has been observed. Cancellation
// is cooperative only; a handler that never reports progress cannot be
// cancelled.
//
//	reg := job.NewRegistry()
//	reg.Register("catalog.export", job.TypedFactory(
//	    func(ctx context.Context, r *job.Record, in ExportInput, progress job.Progress) (any, error) {
//	        ...
//	    },
//	))
//
// # Registry
//
// [Registry] maps job types to factories. It is populated at startup and
// sealed by the orchestrator before dispatching begins.
package job
