package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopaper/gateway/internal/store"
)

func validRow() *store.RouteRow {
	return &store.RouteRow{
		RouteID:                "orders-route",
		PathPattern:            "/api/orders/**",
		UpstreamURI:            "http://orders:8080",
		Method:                 "GET",
		Enabled:                true,
		RateLimitRequests:      100,
		RateLimitPeriodSeconds: 60,
	}
}

func TestFromRow(t *testing.T) {
	def, err := FromRow(validRow())
	require.NoError(t, err)

	assert.Equal(t, "orders-route", def.RouteID)
	assert.Equal(t, "/api/orders/**", def.PathPattern)
	assert.Equal(t, 100, def.BurstCapacity())
	assert.Equal(t, time.Minute, def.Period())
	assert.True(t, def.RateLimited())
}

func TestFromRow_Filters(t *testing.T) {
	def, err := FromRow(validRow())
	require.NoError(t, err)

	require.Len(t, def.Filters, 2)
	assert.Equal(t, FilterRateLimit, def.Filters[0].Name)
	assert.Equal(t, 1, def.Filters[0].Args["replenishRate"])
	assert.Equal(t, 100, def.Filters[0].Args["burstCapacity"])
	assert.Equal(t, 1, def.Filters[0].Args["requestedTokens"])
	assert.Equal(t, FilterStripPrefix, def.Filters[1].Name)
	assert.Equal(t, 0, def.Filters[1].Args["parts"])
}

func TestFromRow_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*store.RouteRow)
	}{
		{name: "empty route id", mutate: func(r *store.RouteRow) { r.RouteID = "" }},
		{name: "empty path pattern", mutate: func(r *store.RouteRow) { r.PathPattern = "" }},
		{name: "empty upstream", mutate: func(r *store.RouteRow) { r.UpstreamURI = "" }},
		{name: "zero period", mutate: func(r *store.RouteRow) { r.RateLimitPeriodSeconds = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := validRow()
			tt.mutate(row)
			_, err := FromRow(row)
			assert.Error(t, err)
		})
	}
}

func TestDefinition_ReplenishRate(t *testing.T) {
	tests := []struct {
		name     string
		requests int
		period   int
		expected int
	}{
		{name: "whole rate", requests: 120, period: 60, expected: 2},
		{name: "fractional rate floors to one", requests: 100, period: 60, expected: 1},
		{name: "below one per second", requests: 5, period: 60, expected: 1},
		{name: "zero period", requests: 100, period: 0, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Definition{RateLimitRequests: tt.requests, RateLimitPeriodSeconds: tt.period}
			assert.Equal(t, tt.expected, d.ReplenishRate())
		})
	}
}

func TestDefinition_RateLimited(t *testing.T) {
	assert.False(t, (&Definition{RateLimitRequests: 0, RateLimitPeriodSeconds: 60}).RateLimited())
	assert.False(t, (&Definition{RateLimitRequests: 10, RateLimitPeriodSeconds: 0}).RateLimited())
	assert.True(t, (&Definition{RateLimitRequests: 10, RateLimitPeriodSeconds: 60}).RateLimited())
}

func TestResolver_ResolveRowsSkipsInvalid(t *testing.T) {
	resolver := NewResolver(nil)

	rows := []store.RouteRow{
		*validRow(),
		{RouteID: "broken", PathPattern: "", UpstreamURI: "http://x", RateLimitPeriodSeconds: 60},
	}

	defs := resolver.ResolveRows(rows)
	require.Len(t, defs, 1)
	assert.Equal(t, "orders-route", defs[0].RouteID)
}

func TestResolver_CompileAndMatch(t *testing.T) {
	resolver := NewResolver(nil)

	defs := []*Definition{
		{RouteID: "users", PathPattern: "/api/users/**", Method: "GET"},
		{RouteID: "orders", PathPattern: "/api/orders/*", Method: ""},
		{RouteID: "catch-all", PathPattern: "/**", Method: ""},
	}

	table := resolver.Compile(defs)
	require.Equal(t, 3, table.Len())

	// First match in stored order wins.
	match := table.Match("GET", "/api/users/42")
	require.NotNil(t, match)
	assert.Equal(t, "users", match.RouteID)

	match = table.Match("POST", "/api/users/42")
	require.NotNil(t, match)
	assert.Equal(t, "catch-all", match.RouteID, "method mismatch falls through")

	match = table.Match("DELETE", "/api/orders/7")
	require.NotNil(t, match)
	assert.Equal(t, "orders", match.RouteID)
}

func TestRouteContext(t *testing.T) {
	def := &Definition{RouteID: "orders"}

	base := context.Background()
	assert.Nil(t, RouteFromContext(base))

	ctx := ContextWithRoute(base, def)
	assert.Same(t, def, RouteFromContext(ctx))
}
