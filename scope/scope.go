// Package scope carries multi-tenant identity (tenant and requester) on a
// context.Context so it can be captured when a job is scheduled and restored
// when the job runs.
package scope

import "context"

type ctxKey struct{}

type identity struct {
	tenantID    string
	requesterID string
}

// WithTenant attaches tenant and requester identifiers to ctx.
func WithTenant(ctx context.Context, tenantID, requesterID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity{tenantID: tenantID, requesterID: requesterID})
}

// Capture extracts the tenant and requester identifiers from ctx.
// Returns empty strings if no scope is present.
func Capture(ctx context.Context) (tenantID, requesterID string) {
	v, ok := ctx.Value(ctxKey{}).(identity)
	if !ok {
		return "", ""
	}
	return v.tenantID, v.requesterID
}

// Restore attaches the identifiers to ctx. If both are empty, the context is
// returned unchanged.
func Restore(ctx context.Context, tenantID, requesterID string) context.Context {
	if tenantID == "" && requesterID == "" {
		return ctx
	}
	return WithTenant(ctx, tenantID, requesterID)
}
