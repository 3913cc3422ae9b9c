// Package store provides durable storage for route definitions, the IP
// blacklist, and audit records.
package store

import (
	"context"
	"time"
)

// RouteRow is a raw route definition row as stored.
type RouteRow struct {
	RouteID                string
	PathPattern            string
	UpstreamURI            string
	Method                 string // empty means any method
	Enabled                bool
	RateLimitRequests      int
	RateLimitPeriodSeconds int
	Description            string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// BlacklistRow is a raw blacklist entry row as stored.
type BlacklistRow struct {
	IPAddress string
	Reason    string
	CreatedAt time.Time
	ExpiresAt *time.Time // nil means permanent
}

// Active reports whether the entry is in effect at the given instant.
func (b *BlacklistRow) Active(now time.Time) bool {
	return b.ExpiresAt == nil || b.ExpiresAt.After(now)
}

// AuditRow is an audit record row ready for insertion.
type AuditRow struct {
	RequestID        string
	RouteID          string
	Method           string
	Path             string
	QueryParams      string
	ClientIP         string
	UserAgent        string
	RequestHeaders   string // JSON, secrets redacted
	ResponseHeaders  string // JSON, secrets redacted
	RequestBody      string
	ResponseBody     string
	ResponseStatus   int
	ProcessingTimeMs int64
	ErrorMessage     string
	CreatedAt        time.Time
}

// RouteStore is the durable source of truth for route definitions.
type RouteStore interface {
	// ListEnabled returns all route rows where enabled is true.
	ListEnabled(ctx context.Context) ([]RouteRow, error)
}

// BlacklistStore is the durable source of truth for the IP blacklist.
type BlacklistStore interface {
	// FindByIP returns the blacklist row for the given IP, or nil when
	// no entry exists.
	FindByIP(ctx context.Context, ip string) (*BlacklistRow, error)

	// DeleteExpired removes rows whose expiry has passed and returns the
	// number of rows deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditStore accepts audit records for durable persistence.
type AuditStore interface {
	// Insert persists a single audit record.
	Insert(ctx context.Context, row *AuditRow) error
}
