// Package ext defines the extension system for jobcore.
//
// Extensions observe the job lifecycle: recording metrics, writing audit
// logs, notifying storefront owners. Each hook is a separate interface so
// extensions opt in only to the events they care about.
//
// # Implementing an Extension
//
//	type Notifier struct{}
//
//	func (n *Notifier) Name() string { return "notifier" }
//
//	func (n *Notifier) OnJobFailed(ctx context.Context, r *job.Record, err error) error {
//	    return notifyOwner(ctx, r.TenantID, err)
//	}
//
// # Hooks
//
//   - [JobScheduled] record persisted by a schedule request
//   - [JobStarted] a dispatcher claimed the job
//   - [JobCompleted] handler finished successfully
//   - [JobFailed] job failed with no retries remaining
//   - [JobRetrying] job failed and was rescheduled
//   - [JobCancelled] job reached cancelled
//   - [Shutdown] the orchestrator is stopping
//
// The [Registry] fans out each event to every registered extension that
// implements the hook. Hook errors are logged and never fail the job.
package ext
