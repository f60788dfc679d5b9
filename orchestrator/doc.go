// Package orchestrator is the scheduling façade of jobcore. It wires the
// handler registry, the record store, the shared executor and both
// dispatch paths (the polling dispatcher and the optional durable queue)
// together, and exposes the scheduling API:
//
//   - ScheduleJob and ScheduleRecurringJob create records
//   - CancelJob requests cooperative cancellation
//   - GetJobStatus, GetJobDetails and GetStatistics query records
//
// Start seals the registry, recovers jobs interrupted by a crash, starts
// the durable queue when it is reachable and then the polling dispatcher.
// If the durable queue is unreachable at startup, the polling dispatcher
// serves every job on its own.
//
// Recurring jobs carry a marker in their metadata; completing one
// schedules the next occurrence with the same named interval.
//
// This package sits above every subsystem package and below the
// application layer, so the root jobcore package can stay import-free.
package orchestrator
