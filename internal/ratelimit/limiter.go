// Package ratelimit implements the distributed fixed-window rate limiter.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/nopaper/gateway/internal/cache"
	"github.com/nopaper/gateway/internal/circuitbreaker"
	"github.com/nopaper/gateway/internal/observability"
)

// counterKeyPrefix namespaces rate-limit counters in the shared cache.
const counterKeyPrefix = "ratelimit:"

// Limiter decides whether a request identified by key is allowed within
// the current window.
type Limiter interface {
	// CheckAndIncrement atomically increments the counter for key and
	// reports whether the post-increment count is within maxRequests.
	// The window is anchored at the first increment and lasts period.
	CheckAndIncrement(ctx context.Context, key string, maxRequests int, period time.Duration) (bool, error)

	// CurrentCount returns the current counter value for key, or 0 when
	// no window is active.
	CurrentCount(ctx context.Context, key string) (int64, error)

	// Reset removes the counter for key, opening a fresh window on the
	// next increment.
	Reset(ctx context.Context, key string) error
}

// CacheLimiter implements Limiter over the shared cache. Backend failures
// fail open: the request is allowed and the error is surfaced through
// logs and metrics only.
type CacheLimiter struct {
	cache   cache.Cache
	breaker *circuitbreaker.Breaker
	logger  observability.Logger
}

// Option is a functional option for configuring the limiter.
type Option func(*CacheLimiter)

// WithLogger sets the logger for the limiter.
func WithLogger(logger observability.Logger) Option {
	return func(l *CacheLimiter) {
		l.logger = logger
	}
}

// WithBreaker sets the circuit breaker guarding cache calls.
func WithBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(l *CacheLimiter) {
		l.breaker = breaker
	}
}

// NewCacheLimiter creates a limiter backed by the shared cache.
func NewCacheLimiter(c cache.Cache, opts ...Option) *CacheLimiter {
	l := &CacheLimiter{
		cache:  c,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.breaker == nil {
		l.breaker = circuitbreaker.New("ratelimit", 5, 30*time.Second)
	}
	return l
}

// CheckAndIncrement implements Limiter.
func (l *CacheLimiter) CheckAndIncrement(
	ctx context.Context,
	key string,
	maxRequests int,
	period time.Duration,
) (bool, error) {
	start := time.Now()
	defer func() {
		checkDuration.Observe(time.Since(start).Seconds())
	}()

	var count int64
	err := l.breaker.Execute(func() error {
		var incErr error
		count, incErr = l.cache.IncrementWithExpiry(ctx, counterKeyPrefix+key, 1, period)
		return incErr
	})
	if err != nil {
		// Fail open: a broken counter backend must not reject traffic.
		failOpenTotal.WithLabelValues("ratelimit").Inc()
		l.logger.Warn("rate limit check failed, allowing request",
			observability.String("key", key),
			observability.Error(err),
		)
		return true, nil
	}

	allowed := count <= int64(maxRequests)
	if allowed {
		decisionsTotal.WithLabelValues("allowed").Inc()
	} else {
		decisionsTotal.WithLabelValues("denied").Inc()
		l.logger.Debug("rate limit exceeded",
			observability.String("key", key),
			observability.Int64("count", count),
			observability.Int("max", maxRequests),
		)
	}
	return allowed, nil
}

// CurrentCount implements Limiter.
func (l *CacheLimiter) CurrentCount(ctx context.Context, key string) (int64, error) {
	val, err := l.cache.Get(ctx, counterKeyPrefix+key)
	if err == cache.ErrCacheMiss {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(val), 10, 64)
}

// Reset implements Limiter.
func (l *CacheLimiter) Reset(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, counterKeyPrefix+key)
}
