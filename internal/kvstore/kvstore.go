// Package kvstore provides the durable key-value backends the cache persists into.
//
// A backend is a flat, byte-capacity-limited string-keyed store. Callers address their
// records under a key prefix so unrelated data can share the same backend.
package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrQuotaExceeded is returned by Put when the write would exceed the backend capacity.
	ErrQuotaExceeded = errors.New("kvstore: quota exceeded")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("kvstore: backend closed")
)

// Backend defines the durable store contract.
type Backend interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	// Returns ErrQuotaExceeded if the backend cannot hold the new value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key that starts with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// Change describes a mutation made through another handle on the same backend.
type Change struct {
	Key     string
	Value   []byte // nil when Deleted
	Deleted bool
}

// Watcher is implemented by backends that can announce mutations made by other
// execution contexts. Changes made through the watching handle itself are not delivered.
// The returned channel is closed when ctx is done or the backend is closed.
type Watcher interface {
	Watch(ctx context.Context) (<-chan Change, error)
}

// recordSize is the capacity cost of one stored record.
func recordSize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}
