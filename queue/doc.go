// Package queue defines the durable queue contract and per-type dispatch
// limits.
//
// The durable queue carries [Entry] values that reference job records by ID.
// Entries are grouped by job type; the adapter starts one worker group per
// type with a bounded concurrency. Each delivery holds a lease that workers
// renew while the handler runs. A lease that expires is reported through
// [StallFunc] so the orchestrator can fail the job through the standard
// retry policy.
//
// Numeric priorities follow [MapPriority]: urgent=1, high=5, normal=10,
// low=20. Lower values are delivered first among ready entries.
//
// # Limits
//
// [Manager] enforces per-type and per-tenant limits using a token bucket
// (golang.org/x/time/rate) and an active-count gate. Both dispatch paths
// consult it before starting a job:
//
//	m := queue.NewManager(
//	    queue.Config{JobType: "catalog.import", Concurrency: 2},
//	    queue.Config{JobType: "email.send", RateLimit: 10, RateBurst: 20},
//	)
//	m.SetTenantConfig(queue.TenantConfig{JobType: "catalog.import", TenantID: "store_42", MaxConcurrency: 1})
//
// Types without a [Config] have no limits beyond the dispatcher's own
// concurrency.
package queue
