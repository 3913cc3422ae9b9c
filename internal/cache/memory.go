package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry is a single in-memory cache entry.
type memoryEntry struct {
	value     []byte
	counter   int64
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is an in-memory Cache implementation. It is used in tests
// and in single-instance deployments that run without Redis.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	closed  bool

	// now is replaceable for tests.
	now func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

// Get retrieves a value from the cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	e, ok := c.entries[key]
	if !ok || e.expired(c.now()) {
		delete(c.entries, key)
		cacheMissesTotal.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}

	cacheHitsTotal.WithLabelValues("memory").Inc()
	return e.value, nil
}

// Set stores a value in the cache with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// Delete removes a value from the cache.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	delete(c.entries, key)
	return nil
}

// IncrementWithExpiry atomically increments the counter stored at key.
// The expiry is set only when the increment creates the key, matching the
// Redis script semantics.
func (c *MemoryCache) IncrementWithExpiry(
	_ context.Context,
	key string,
	delta int64,
	expiration time.Duration,
) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	now := c.now()
	e, ok := c.entries[key]
	if !ok || e.expired(now) {
		e = &memoryEntry{}
		if expiration > 0 {
			e.expiresAt = now.Add(expiration)
		}
		c.entries[key] = e
	}
	e.counter += delta
	return e.counter, nil
}

// Close marks the cache closed and releases its entries.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.entries = nil
	return nil
}

// SetNow replaces the clock used for expiry checks. Tests only.
func (c *MemoryCache) SetNow(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
