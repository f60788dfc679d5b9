// Package relayhook relays job lifecycle events to other services over
// Redis pub/sub. When registered as an extension, it publishes a typed
// event (jobcore.job.completed, jobcore.job.failed, etc.) at every
// lifecycle point, on a channel per tenant, so storefront and admin
// services can follow the jobs they scheduled.
//
// Usage:
//
//	pub := relayhook.NewRedisPublisher(client)
//	hook := relayhook.New(pub)
//	orchestrator.WithExtension(hook)
//
// To restrict which events are emitted:
//
//	hook := relayhook.New(pub,
//	    relayhook.WithEvents(
//	        relayhook.EventJobCompleted,
//	        relayhook.EventJobFailed,
//	    ),
//	)
package relayhook
