// Package store persists run history for slipway pipelines.
package store

import (
	"context"
	"strings"
)

// Resource types stored per pipeline.
const (
	// ResourceTypeRun holds runs, keyed by zero-padded run number
	ResourceTypeRun = "runs"

	// ResourceTypeLegRun holds per-leg execution records
	ResourceTypeLegRun = "legruns"

	// ResourceTypeArtifact holds staged distribution file records
	ResourceTypeArtifact = "artifacts"

	// ResourceTypeEvent holds run lifecycle events
	ResourceTypeEvent = "events"
)

// Store is the interface run history is written through. Resources are
// addressed by (resourceType, pipeline, name) and stored as JSON.
type Store interface {
	// Open initializes and opens the store.
	Open(path string) error

	// Close closes the store and releases resources.
	Close() error

	// Create creates a new resource.
	Create(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error

	// Get retrieves a resource into the given value.
	Get(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error

	// Update replaces an existing resource.
	Update(ctx context.Context, resourceType, pipeline, name string, resource interface{}) error

	// Delete deletes a resource.
	Delete(ctx context.Context, resourceType, pipeline, name string) error

	// List retrieves all resources of a type for a pipeline into out,
	// which must be a pointer to a slice. Resources arrive in key order.
	List(ctx context.Context, resourceType, pipeline string, out interface{}) error

	// NextSequence returns the next run number for a pipeline,
	// starting at 1.
	NextSequence(pipeline string) (uint64, error)
}

// IsNotFoundError reports whether an error came from a missing resource.
func IsNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

// IsAlreadyExistsError reports whether an error came from a Create on an
// existing resource.
func IsAlreadyExistsError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
