package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLStore_ListEnabled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.InsertRoute(ctx, &RouteRow{
		RouteID:                "orders-route",
		PathPattern:            "/api/orders/**",
		UpstreamURI:            "http://orders:8080",
		Method:                 "GET",
		Enabled:                true,
		RateLimitRequests:      100,
		RateLimitPeriodSeconds: 60,
		Description:            "orders service",
		CreatedAt:              now,
		UpdatedAt:              now,
	}))
	require.NoError(t, s.InsertRoute(ctx, &RouteRow{
		RouteID:                "disabled-route",
		PathPattern:            "/api/legacy/**",
		UpstreamURI:            "http://legacy:8080",
		Enabled:                false,
		RateLimitRequests:      10,
		RateLimitPeriodSeconds: 60,
		CreatedAt:              now,
		UpdatedAt:              now,
	}))

	rows, err := s.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	r := rows[0]
	assert.Equal(t, "orders-route", r.RouteID)
	assert.Equal(t, "/api/orders/**", r.PathPattern)
	assert.Equal(t, "http://orders:8080", r.UpstreamURI)
	assert.Equal(t, 100, r.RateLimitRequests)
	assert.Equal(t, 60, r.RateLimitPeriodSeconds)
	assert.True(t, r.Enabled)
	assert.Equal(t, now.UnixMilli(), r.CreatedAt.UnixMilli())
}

func TestSQLStore_ListEnabledEmpty(t *testing.T) {
	s := newTestStore(t)

	rows, err := s.ListEnabled(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSQLStore_InsertRouteReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	row := &RouteRow{
		RouteID:                "orders-route",
		PathPattern:            "/api/orders/**",
		UpstreamURI:            "http://orders:8080",
		Enabled:                true,
		RateLimitRequests:      100,
		RateLimitPeriodSeconds: 60,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, s.InsertRoute(ctx, row))

	row.UpstreamURI = "http://orders-v2:8080"
	require.NoError(t, s.InsertRoute(ctx, row))

	rows, err := s.ListEnabled(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "http://orders-v2:8080", rows[0].UpstreamURI)
}

func TestSQLStore_FindByIP(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	expires := now.Add(time.Hour)

	require.NoError(t, s.InsertBlacklistEntry(ctx, &BlacklistRow{
		IPAddress: "203.0.113.9",
		Reason:    "abuse",
		CreatedAt: now,
		ExpiresAt: &expires,
	}))
	require.NoError(t, s.InsertBlacklistEntry(ctx, &BlacklistRow{
		IPAddress: "198.51.100.2",
		Reason:    "permanent ban",
		CreatedAt: now,
	}))

	row, err := s.FindByIP(ctx, "203.0.113.9")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "abuse", row.Reason)
	require.NotNil(t, row.ExpiresAt)
	assert.Equal(t, expires.UnixMilli(), row.ExpiresAt.UnixMilli())

	row, err = s.FindByIP(ctx, "198.51.100.2")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Nil(t, row.ExpiresAt)

	row, err = s.FindByIP(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Nil(t, row, "absent IP returns nil row, not an error")
}

func TestSQLStore_DeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, s.InsertBlacklistEntry(ctx, &BlacklistRow{
		IPAddress: "203.0.113.9", CreatedAt: now, ExpiresAt: &past,
	}))
	require.NoError(t, s.InsertBlacklistEntry(ctx, &BlacklistRow{
		IPAddress: "198.51.100.2", CreatedAt: now, ExpiresAt: &future,
	}))
	require.NoError(t, s.InsertBlacklistEntry(ctx, &BlacklistRow{
		IPAddress: "192.0.2.1", CreatedAt: now,
	}))

	deleted, err := s.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	row, err := s.FindByIP(ctx, "203.0.113.9")
	require.NoError(t, err)
	assert.Nil(t, row)

	// Future and permanent entries survive.
	row, err = s.FindByIP(ctx, "198.51.100.2")
	require.NoError(t, err)
	assert.NotNil(t, row)

	row, err = s.FindByIP(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestSQLStore_InsertAuditRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := &AuditRow{
		RequestID:        "req-1",
		RouteID:          "orders-route",
		Method:           "GET",
		Path:             "/api/orders",
		QueryParams:      "limit=5",
		ClientIP:         "10.0.0.1",
		UserAgent:        "test-agent",
		RequestHeaders:   `{"Accept":["application/json"]}`,
		ResponseStatus:   200,
		ProcessingTimeMs: 12,
		CreatedAt:        time.Now(),
	}

	require.NoError(t, s.Insert(ctx, row))

	// Duplicate request IDs are ignored rather than failing the worker.
	assert.NoError(t, s.Insert(ctx, row))
}

func TestBlacklistRow_Active(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&BlacklistRow{}).Active(now), "permanent entry is always active")
	assert.True(t, (&BlacklistRow{ExpiresAt: &future}).Active(now))
	assert.False(t, (&BlacklistRow{ExpiresAt: &past}).Active(now))
	assert.False(t, (&BlacklistRow{ExpiresAt: &now}).Active(now), "expiry instant is inactive")
}
