// Package cache provides the shared key-value cache used for the route
// table, blacklist lookups, and rate-limit counters.
package cache

import (
	"context"
	"errors"
	"time"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrClosed indicates that the cache has been closed.
	ErrClosed = errors.New("cache closed")
)

// Cache is the main interface for the shared cache. Implementations must
// provide per-key TTLs and an atomic increment-with-expiry primitive.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 means the entry never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// IncrementWithExpiry atomically increments the counter stored at key
	// by delta and, only when the increment created the key, sets its
	// expiry. Returns the post-increment count.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiration time.Duration) (int64, error)

	// Close closes the cache connection.
	Close() error
}
