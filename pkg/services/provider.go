package services

import (
	"context"
	"errors"
)

var ErrInvalidSlug = errors.New("service slug is required")

// Store is the persistent service directory.
type Store interface {
	// EnsureSchema prepares the backing storage; safe to call repeatedly.
	EnsureSchema(ctx context.Context) error
	// Upsert inserts the descriptor or, on slug conflict, updates it in place.
	Upsert(ctx context.Context, d Descriptor) error
	// List returns descriptors in creation order.
	List(ctx context.Context) ([]Descriptor, error)
	// IsInstalled reports whether at least one descriptor exists.
	IsInstalled(ctx context.Context) (bool, error)
}

// Claimer guards the installation pipeline so only one run proceeds at a time.
type Claimer interface {
	// Claim returns true when the caller now holds the installation claim.
	Claim(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
