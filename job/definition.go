package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypedFunc is a handler body that receives the record's payload decoded
// into T.
type TypedFunc[T any] func(ctx context.Context, r *Record, payload T, progress Progress) (any, error)

// TypedFactory returns a Factory that JSON-decodes the record payload into T
// before calling fn. A payload that does not decode fails the handler
// construction, which the executor records as a job failure.
func TypedFactory[T any](fn TypedFunc[T]) Factory {
	return func(r *Record) (Handler, error) {
		var payload T
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload for job %q: %w", r.Type, err)
			}
		}
		return HandlerFunc(func(ctx context.Context, progress Progress) (any, error) {
			return fn(ctx, r, payload, progress)
		}), nil
	}
}
