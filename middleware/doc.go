// Package middleware provides composable middleware around job handler
// execution.
//
// A [Middleware] wraps the call into a job's handler. Middleware are composed
// into a chain using [Chain] and applied to every execution regardless of
// which dispatch path claimed the job. They are applied right-to-left: the
// first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs job type, tenant, duration and outcome
//   - [Recover] converts handler panics into job failures
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-type duration and outcome
//   - [Scope] restores the tenant and requester into the context
//
// There is no timeout middleware. Cancellation is cooperative:
// a handler stops only when it observes the signal through its progress
// callback.
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
