package middleware

import (
	"context"

	"github.com/shopforge/jobcore/job"
	"github.com/shopforge/jobcore/scope"
)

// Scope returns middleware that restores the record's tenant and requester
// into the context, so handlers see the same identity as the caller that
// scheduled the job.
func Scope() Middleware {
	return func(ctx context.Context, r *job.Record, next Handler) (any, error) {
		ctx = scope.Restore(ctx, r.TenantID, r.RequesterID)
		return next(ctx)
	}
}
