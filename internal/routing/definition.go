// Package routing resolves stored route rows into a matchable route table
// and caches the table with a bounded TTL.
package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/nopaper/gateway/internal/store"
)

// Filter names attached to every resolved route.
const (
	FilterRateLimit   = "RequestRateLimiter"
	FilterStripPrefix = "StripPrefix"
)

// FilterSpec names a filter and its arguments as attached to a route.
type FilterSpec struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Definition is an immutable routable definition produced from a stored
// route row. It is shared between requests and must not be mutated after
// resolution.
type Definition struct {
	RouteID                string       `json:"routeId"`
	PathPattern            string       `json:"pathPattern"`
	UpstreamURI            string       `json:"upstreamUri"`
	Method                 string       `json:"method"` // empty means any
	RateLimitRequests      int          `json:"rateLimitRequests"`
	RateLimitPeriodSeconds int          `json:"rateLimitPeriodSeconds"`
	Description            string       `json:"description"`
	Filters                []FilterSpec `json:"filters"`
}

// ReplenishRate returns the sustained requests-per-second rate derived
// from the route quota, floored at 1.
func (d *Definition) ReplenishRate() int {
	if d.RateLimitPeriodSeconds <= 0 {
		return 1
	}
	rate := d.RateLimitRequests / d.RateLimitPeriodSeconds
	if rate < 1 {
		return 1
	}
	return rate
}

// BurstCapacity returns the maximum requests allowed in a single window.
func (d *Definition) BurstCapacity() int {
	return d.RateLimitRequests
}

// Period returns the rate-limit window duration.
func (d *Definition) Period() time.Duration {
	return time.Duration(d.RateLimitPeriodSeconds) * time.Second
}

// RateLimited reports whether the route carries a usable quota.
func (d *Definition) RateLimited() bool {
	return d.RateLimitRequests > 0 && d.RateLimitPeriodSeconds > 0
}

// FromRow converts a stored route row into a Definition, attaching the
// standard ordered filter set: a rate-limit filter parameterized by the
// route quota followed by a trailing strip-prefix filter.
func FromRow(row *store.RouteRow) (*Definition, error) {
	if row.RouteID == "" {
		return nil, fmt.Errorf("route has empty route_id")
	}
	if row.PathPattern == "" {
		return nil, fmt.Errorf("route %s has empty path_pattern", row.RouteID)
	}
	if row.UpstreamURI == "" {
		return nil, fmt.Errorf("route %s has empty upstream_uri", row.RouteID)
	}
	if row.RateLimitPeriodSeconds <= 0 {
		return nil, fmt.Errorf("route %s has non-positive rate_limit_period_seconds", row.RouteID)
	}

	d := &Definition{
		RouteID:                row.RouteID,
		PathPattern:            row.PathPattern,
		UpstreamURI:            row.UpstreamURI,
		Method:                 row.Method,
		RateLimitRequests:      row.RateLimitRequests,
		RateLimitPeriodSeconds: row.RateLimitPeriodSeconds,
		Description:            row.Description,
	}
	d.Filters = []FilterSpec{
		{
			Name: FilterRateLimit,
			Args: map[string]interface{}{
				"replenishRate":   d.ReplenishRate(),
				"burstCapacity":   d.BurstCapacity(),
				"requestedTokens": 1,
			},
		},
		{
			Name: FilterStripPrefix,
			Args: map[string]interface{}{"parts": 0},
		},
	}
	return d, nil
}

// contextKey is the type for context keys owned by this package.
type contextKey struct{}

var routeContextKey contextKey

// ContextWithRoute attaches the matched route to the context.
func ContextWithRoute(ctx context.Context, def *Definition) context.Context {
	return context.WithValue(ctx, routeContextKey, def)
}

// RouteFromContext returns the matched route, or nil when no route has
// been attached.
func RouteFromContext(ctx context.Context) *Definition {
	if def, ok := ctx.Value(routeContextKey).(*Definition); ok {
		return def
	}
	return nil
}
