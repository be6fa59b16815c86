// Package cache provides the namespaced TTL cache used by the
// authorization pipeline.
package cache

import (
	"context"
	"time"
)

// Cache is the main interface for the namespaced TTL cache.
//
// An entry is logically absent once its TTL has elapsed, even if it has
// not yet been physically removed: expired entries are deleted lazily on
// read, and a background sweep bounds memory for keys that are never
// re-read.
type Cache interface {
	// Get retrieves a value. Returns false when the key is missing or
	// the entry has expired.
	Get(ctx context.Context, namespace, key string) (any, bool)

	// Set stores a value with the given TTL, overwriting any existing
	// entry. A TTL of 0 falls back to the configured default TTL.
	Set(ctx context.Context, namespace, key string, value any, ttl time.Duration)

	// Delete removes a value. Returns true if an entry was removed.
	Delete(ctx context.Context, namespace, key string) bool

	// ClearNamespace removes all entries in a namespace and returns the
	// number of entries removed.
	ClearNamespace(ctx context.Context, namespace string) int

	// ClearAll removes all entries across all namespaces.
	ClearAll(ctx context.Context)

	// Len returns the current number of entries.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats

	// Close stops the background sweep and releases resources.
	Close() error
}

// Stats contains cache statistics.
type Stats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Evictions is the number of capacity evictions.
	Evictions int64

	// Size is the current number of entries.
	Size int64
}

// HitRate returns the cache hit rate as a percentage.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// TypedGet retrieves a value and asserts it to T. Returns false when the
// key is absent, expired, or holds a value of a different type.
func TypedGet[T any](ctx context.Context, c Cache, namespace, key string) (T, bool) {
	var zero T
	value, ok := c.Get(ctx, namespace, key)
	if !ok {
		return zero, false
	}
	typed, ok := value.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
