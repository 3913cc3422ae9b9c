package routing

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/nopaper/gateway/internal/cache"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/store"
)

// routeTableKey is the single shared-cache key holding the serialized
// route table.
const routeTableKey = "routes"

var (
	routeRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_route_refreshes_total",
			Help: "Total number of route table refreshes",
		},
		[]string{"source"},
	)

	routeStaleServesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_route_stale_serves_total",
			Help: "Total number of refreshes that fell back to the last known good table",
		},
	)

	routeTableSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_route_table_size",
			Help: "Number of routes in the active table",
		},
	)
)

// snapshot is a compiled table with its local expiry.
type snapshot struct {
	table     *Table
	expiresAt time.Time
}

// Cache is the cache-aside layer in front of the route store. Reads are
// served from an in-process compiled snapshot; on expiry the shared cache
// is consulted, then the store. Concurrent refreshes collapse into a
// single store query. When the store is unreachable the last known good
// table is served; when none exists, an empty table is returned and no
// traffic is routable.
type Cache struct {
	store    store.RouteStore
	shared   cache.Cache
	resolver *Resolver
	ttl      time.Duration
	logger   observability.Logger

	current  atomic.Pointer[snapshot]
	lastGood atomic.Pointer[Table]
	group    singleflight.Group

	// now is replaceable for tests.
	now func() time.Time
}

// CacheOption is a functional option for configuring the route cache.
type CacheOption func(*Cache)

// WithLogger sets the logger for the route cache.
func WithLogger(logger observability.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithClock replaces the clock used for local expiry. Tests only.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a route cache over the given store and shared cache.
func NewCache(rs store.RouteStore, shared cache.Cache, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  rs,
		shared: shared,
		ttl:    ttl,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = NewResolver(c.logger)
	return c
}

// Table returns the active compiled route table, refreshing it when the
// local snapshot has expired.
func (c *Cache) Table(ctx context.Context) *Table {
	if snap := c.current.Load(); snap != nil && c.now().Before(snap.expiresAt) {
		return snap.table
	}
	return c.refresh(ctx)
}

// ListEnabled returns the definitions in the active table.
func (c *Cache) ListEnabled(ctx context.Context) []*Definition {
	return c.Table(ctx).Definitions()
}

// Invalidate drops both the shared and local cached table so the next
// read refreshes from the store.
func (c *Cache) Invalidate(ctx context.Context) {
	if err := c.shared.Delete(ctx, routeTableKey); err != nil {
		c.logger.Warn("failed to invalidate shared route table",
			observability.Error(err),
		)
	}
	c.current.Store(nil)
}

// refresh loads the route table, collapsing concurrent callers into one
// load via singleflight.
func (c *Cache) refresh(ctx context.Context) *Table {
	v, _, _ := c.group.Do(routeTableKey, func() (interface{}, error) {
		return c.load(ctx), nil
	})
	return v.(*Table)
}

// load fetches definitions from the shared cache or the store, compiles
// them, and installs the new snapshot. It never returns nil.
func (c *Cache) load(ctx context.Context) *Table {
	defs, source, err := c.fetchDefinitions(ctx)
	if err != nil {
		routeStaleServesTotal.Inc()
		c.logger.Error("route table refresh failed",
			observability.Error(err),
		)
		if last := c.lastGood.Load(); last != nil {
			// Keep serving the stale table; retry on the next read.
			c.current.Store(&snapshot{table: last, expiresAt: c.now().Add(c.ttl)})
			return last
		}
		empty := &Table{}
		c.current.Store(&snapshot{table: empty, expiresAt: c.now().Add(c.ttl)})
		return empty
	}

	table := c.resolver.Compile(defs)
	c.current.Store(&snapshot{table: table, expiresAt: c.now().Add(c.ttl)})
	c.lastGood.Store(table)

	routeRefreshesTotal.WithLabelValues(source).Inc()
	routeTableSize.Set(float64(table.Len()))
	c.logger.Debug("route table refreshed",
		observability.String("source", source),
		observability.Int("routes", table.Len()),
	)
	return table
}

// fetchDefinitions consults the shared cache first, then the store. A
// store hit repopulates the shared cache with the configured TTL.
func (c *Cache) fetchDefinitions(ctx context.Context) (defs []*Definition, source string, err error) {
	data, cacheErr := c.shared.Get(ctx, routeTableKey)
	if cacheErr == nil {
		if jsonErr := json.Unmarshal(data, &defs); jsonErr == nil {
			return defs, "cache", nil
		}
		c.logger.Warn("discarding undecodable cached route table")
	} else if cacheErr != cache.ErrCacheMiss {
		c.logger.Warn("shared route cache unavailable",
			observability.Error(cacheErr),
		)
	}

	rows, err := c.store.ListEnabled(ctx)
	if err != nil {
		return nil, "", err
	}

	defs = c.resolver.ResolveRows(rows)

	if data, jsonErr := json.Marshal(defs); jsonErr == nil {
		if setErr := c.shared.Set(ctx, routeTableKey, data, c.ttl); setErr != nil {
			c.logger.Warn("failed to populate shared route cache",
				observability.Error(setErr),
			)
		}
	}

	return defs, "store", nil
}
