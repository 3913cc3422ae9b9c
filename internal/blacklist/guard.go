// Package blacklist implements the IP blacklist guard.
package blacklist

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nopaper/gateway/internal/cache"
	"github.com/nopaper/gateway/internal/circuitbreaker"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/store"
)

// cacheKeyPrefix namespaces blacklist lookups in the shared cache.
const cacheKeyPrefix = "ip-blacklist:"

// Cached lookup outcomes.
const (
	cachedBlacklisted    = "1"
	cachedNotBlacklisted = "0"
)

var (
	blacklistLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_blacklist_lookups_total",
			Help: "Total number of blacklist lookups",
		},
		[]string{"source", "result"},
	)

	blacklistFailOpenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_blacklist_fail_open_total",
			Help: "Total number of blacklist checks that failed open",
		},
	)
)

// Guard checks whether a client IP is banned. Lookups are cache-aside over
// the durable blacklist store; both positive and negative outcomes are
// cached for the configured TTL. Any cache or store failure fails open.
type Guard struct {
	store   store.BlacklistStore
	cache   cache.Cache
	breaker *circuitbreaker.Breaker
	ttl     time.Duration
	logger  observability.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// Option is a functional option for configuring the guard.
type Option func(*Guard)

// WithLogger sets the logger for the guard.
func WithLogger(logger observability.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithBreaker sets the circuit breaker guarding store calls.
func WithBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(g *Guard) {
		g.breaker = breaker
	}
}

// WithClock replaces the clock used for expiry evaluation. Tests only.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// NewGuard creates a blacklist guard.
func NewGuard(bs store.BlacklistStore, c cache.Cache, ttl time.Duration, opts ...Option) *Guard {
	g := &Guard{
		store:  bs,
		cache:  c,
		ttl:    ttl,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = circuitbreaker.New("blacklist", 5, 30*time.Second)
	}
	return g
}

// IsBlacklisted reports whether the IP has an active blacklist entry. An
// entry is active when it has no expiry or its expiry is in the future.
func (g *Guard) IsBlacklisted(ctx context.Context, ip string) bool {
	key := cacheKeyPrefix + ip

	val, err := g.cache.Get(ctx, key)
	if err == nil {
		result := string(val) == cachedBlacklisted
		blacklistLookupsTotal.WithLabelValues("cache", resultLabel(result)).Inc()
		return result
	}
	if err != cache.ErrCacheMiss {
		g.logger.Warn("blacklist cache lookup failed",
			observability.String("ip", ip),
			observability.Error(err),
		)
	}

	var row *store.BlacklistRow
	err = g.breaker.Execute(func() error {
		var findErr error
		row, findErr = g.store.FindByIP(ctx, ip)
		return findErr
	})
	if err != nil {
		blacklistFailOpenTotal.Inc()
		g.logger.Warn("blacklist store lookup failed, allowing request",
			observability.String("ip", ip),
			observability.Error(err),
		)
		return false
	}

	result := row != nil && row.Active(g.now())
	blacklistLookupsTotal.WithLabelValues("store", resultLabel(result)).Inc()

	cached := cachedNotBlacklisted
	if result {
		cached = cachedBlacklisted
	}
	if setErr := g.cache.Set(ctx, key, []byte(cached), g.ttl); setErr != nil {
		g.logger.Warn("failed to cache blacklist result",
			observability.String("ip", ip),
			observability.Error(setErr),
		)
	}

	return result
}

func resultLabel(blacklisted bool) string {
	if blacklisted {
		return "blacklisted"
	}
	return "clean"
}
