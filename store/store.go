// Package store defines the aggregate persistence interface. The job
// package defines the record and history contract; the composite Store adds
// lifecycle management. Backends: Postgres and Memory.
package store

import (
	"context"

	"github.com/shopforge/jobcore/job"
)

// Store is the aggregate persistence interface implemented by every backend.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
