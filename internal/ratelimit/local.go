package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter implements Limiter with in-process token buckets. It is
// used when the gateway runs as a single instance without a shared cache;
// limits then apply per instance, not across the fleet.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*localEntry
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an empty local limiter. Idle entries are evicted
// lazily on access.
func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
	}
}

// CheckAndIncrement implements Limiter. The per-key bucket refills at
// maxRequests per period and allows bursts up to maxRequests.
func (l *LocalLimiter) CheckAndIncrement(
	_ context.Context,
	key string,
	maxRequests int,
	period time.Duration,
) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	e, ok := l.limiters[key]
	if !ok {
		limit := rate.Limit(float64(maxRequests) / period.Seconds())
		e = &localEntry{limiter: rate.NewLimiter(limit, maxRequests)}
		l.limiters[key] = e
	}
	e.lastSeen = now

	l.evictIdle(now, 2*period)

	return e.limiter.Allow(), nil
}

// CurrentCount implements Limiter. Token buckets do not track a request
// count, so the number of consumed tokens in the current burst is
// approximated from remaining capacity.
func (l *LocalLimiter) CurrentCount(_ context.Context, key string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[key]
	if !ok {
		return 0, nil
	}
	consumed := float64(e.limiter.Burst()) - e.limiter.Tokens()
	if consumed < 0 {
		consumed = 0
	}
	return int64(consumed), nil
}

// Reset implements Limiter.
func (l *LocalLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.limiters, key)
	return nil
}

// evictIdle drops entries not seen within maxIdle. Caller holds the lock.
func (l *LocalLimiter) evictIdle(now time.Time, maxIdle time.Duration) {
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(l.limiters, key)
		}
	}
}
