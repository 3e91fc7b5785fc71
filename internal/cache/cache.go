// Package cache implements the resource cache engine: a size-bounded, TTL-based cache with
// hybrid expiry+recency eviction, brotli compression of large payloads, durable
// persistence through a kvstore.Backend and reconciliation with other processes sharing
// that backend.
//
// Manager is the entry point. It is safe for concurrent use; every mutation is serialized
// behind one lock and all background work (cleanup ticks, cross-context notifications)
// runs on a single goroutine.
package cache

import "time"

// Cache defines the interface consumers use to cache values with a TTL.
type Cache[T any] interface {
	// Get retrieves a value from the cache by key.
	// Returns the value and true if found and not expired, otherwise the zero value and false.
	Get(key string) (T, bool)

	// Set stores a value in the cache with the given key and TTL.
	// A TTL <= 0 means use the default cache TTL.
	Set(key string, value T, ttl time.Duration)

	// Delete removes a value from the cache and reports whether it was present.
	Delete(key string) bool

	// Clear removes all values from the cache.
	Clear()

	// Stats returns a snapshot of cache statistics.
	Stats() Stats
}
