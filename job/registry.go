package job

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/shopforge/jobcore"
)

// Registry maps job types to handler factories. It is safe for concurrent
// use and becomes read-only once sealed.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	sealed    bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register maps jobType to factory. Registering a type twice replaces the
// earlier factory.
func (r *Registry) Register(jobType string, factory Factory) error {
	if jobType == "" {
		return errors.New("job: register: empty job type")
	}
	if factory == nil {
		return fmt.Errorf("job: register %q: nil factory", jobType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("job: register %q: %w", jobType, jobcore.ErrRegistrySealed)
	}
	r.factories[jobType] = factory
	return nil
}

// RegisterAll builds and registers each provider. A provider that fails is
// logged and skipped so the remaining handlers still register. The returned
// slice holds one error per skipped type.
func (r *Registry) RegisterAll(providers map[string]FactoryProvider, logger *slog.Logger) []error {
	if logger == nil {
		logger = slog.Default()
	}

	types := make([]string, 0, len(providers))
	for t := range providers {
		types = append(types, t)
	}
	sort.Strings(types)

	var errs []error
	for _, jobType := range types {
		factory, err := providers[jobType]()
		if err == nil {
			err = r.Register(jobType, factory)
		}
		if err != nil {
			logger.Error("handler registration failed",
				slog.String("job_type", jobType),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("register %q: %w", jobType, err))
			continue
		}
		logger.Debug("handler registered", slog.String("job_type", jobType))
	}
	return errs
}

// Resolve returns the factory for jobType or ErrUnknownJobType.
func (r *Registry) Resolve(jobType string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}
	return f, nil
}

// Has reports whether jobType is registered.
func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[jobType]
	return ok
}

// Types returns all registered job types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}
