// Package jobcore is the background job orchestration core of the storefront
// platform. It schedules, executes, retries, cancels and records asynchronous
// units of work (catalog imports, exports, billing runs, marketing
// automations) across process restarts and deployments.
//
// Two execution paths cooperate on one job record store:
//
//   - a durable queue (Redis) that is the primary dispatch path when
//     configured, and
//   - a polling dispatcher that always runs, picks up jobs the durable path
//     missed and is the only path when no durable queue is available.
//
// Neither path holds an in-memory lock shared with the other. A job is run
// only by the caller that wins the store's status-gated pending → running
// transition.
//
// # Quick Start
//
//	reg := job.NewRegistry()
//	reg.Register("catalog.import", importFactory)
//
//	o, err := orchestrator.New(pgStore, reg,
//	    orchestrator.WithQueue(redisQueue),
//	    orchestrator.WithLogger(logger),
//	)
//	if err := o.Start(ctx); err != nil { ... }
//
//	rec, err := o.ScheduleJob(ctx, "catalog.import", payload,
//	    job.WithPriority(job.PriorityHigh),
//	    job.WithTenant(storeID),
//	)
//
// All entity IDs are TypeIDs: type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package jobcore
