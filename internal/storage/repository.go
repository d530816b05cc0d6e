// Package storage provides the key-value repository the rest of the
// application persists through. Keys are plain strings holding
// JSON-encoded values; there is no atomicity across keys or calls.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when a key has never been set or has
// been removed.
var ErrNotFound = errors.New("key not found")

// Repository is the abstract asynchronous string-keyed store. Every key
// has exactly one logical owner subsystem that performs read-modify-write;
// other subsystems only read it.
type Repository interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// MultiGet returns the values for the given keys. Absent keys are
	// simply missing from the result map.
	MultiGet(ctx context.Context, keys []string) (map[string]string, error)

	// Close releases any underlying resources.
	Close() error
}
