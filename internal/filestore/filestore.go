// Package filestore defines the raw-content storage port and a local
// filesystem implementation.
package filestore

import (
	"context"
	"errors"
)

// Sentinel errors for file store operations.
var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidKey indicates a key that fails validation (empty,
	// absolute, or containing path traversal).
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store persists raw document bytes under tenant-namespaced keys.
//
// Keys are slash-separated relative paths, conventionally
// "<tenantID>/documents/<uuid>.<format>". Implementations must reject
// keys that could escape their root.
type Store interface {
	// Save writes data under key with optional metadata, returning the
	// key it was stored under.
	Save(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error)

	// Get reads the data stored under key. Returns ErrNotFound if the
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the data stored under key. Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds data.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Metadata returns the metadata stored alongside key, or
	// ErrNotFound.
	Metadata(ctx context.Context, key string) (map[string]string, error)
}
