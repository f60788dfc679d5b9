package job

import (
	"context"
	"errors"
)

var (
	// ErrCancelled is the cancellation signal. Progress returns it once a
	// cancellation request is observed; handlers return it (possibly
	// wrapped, possibly with a partial result) to stop early.
	ErrCancelled = errors.New("job: cancelled")

	// ErrUnknownJobType is returned for a job type with no registered factory.
	ErrUnknownJobType = errors.New("job: unknown job type")
)

// Progress reports completion percent (0–100) and a human message. It
// returns ErrCancelled when the job has been asked to stop.
type Progress func(percent int, message string) error

// Handler runs one job. A non-nil result is stored on the record even when
// err is ErrCancelled, so partial work survives a cancellation.
type Handler interface {
	Execute(ctx context.Context, progress Progress) (result any, err error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, progress Progress) (any, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, progress Progress) (any, error) {
	return f(ctx, progress)
}

// Factory constructs a Handler for the record it will run.
type Factory func(r *Record) (Handler, error)

// FactoryProvider builds a Factory. It may fail, e.g. when a dependency of
// the handler is not configured in this deployment.
type FactoryProvider func() (Factory, error)

// IsCancelled reports whether err carries the cancellation signal.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
