package jobcore

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("jobcore: no store configured")
	ErrMigrationFailed = errors.New("jobcore: migration failed")

	// Not found errors.
	ErrJobNotFound = errors.New("jobcore: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobcore: job already exists")

	// State errors.
	ErrInvalidState = errors.New("jobcore: invalid state transition")

	// Configuration errors.
	ErrRegistrySealed = errors.New("jobcore: handler registry is sealed")

	// Infrastructure errors.
	ErrQueueUnavailable = errors.New("jobcore: durable queue unavailable")
)
