package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore implements RouteStore, BlacklistStore, and AuditStore over a
// single SQLite database.
type SQLStore struct {
	db *sql.DB
}

// Open opens (or creates) the gateway database at path and ensures the
// schema exists.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	if _, err := db.Exec(createDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema on %s: %w", path, err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// ListEnabled returns all route rows where enabled is true.
func (s *SQLStore) ListEnabled(ctx context.Context) ([]RouteRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		route_id, path_pattern, upstream_uri, method, enabled,
		rate_limit_requests, rate_limit_period_seconds, description,
		created_at, updated_at
	FROM routes WHERE enabled = 1 ORDER BY route_id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled routes: %w", err)
	}
	defer rows.Close()

	var result []RouteRow
	for rows.Next() {
		var r RouteRow
		var enabled int
		var createdAt, updatedAt int64
		if err := rows.Scan(
			&r.RouteID, &r.PathPattern, &r.UpstreamURI, &r.Method, &enabled,
			&r.RateLimitRequests, &r.RateLimitPeriodSeconds, &r.Description,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan route row: %w", err)
		}
		r.Enabled = enabled != 0
		r.CreatedAt = time.UnixMilli(createdAt)
		r.UpdatedAt = time.UnixMilli(updatedAt)
		result = append(result, r)
	}
	return result, rows.Err()
}

// FindByIP returns the blacklist row for the given IP, or nil when none exists.
func (s *SQLStore) FindByIP(ctx context.Context, ip string) (*BlacklistRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT ip_address, reason, created_at, expires_at FROM ip_blacklist WHERE ip_address = ?`, ip)

	var b BlacklistRow
	var createdAt int64
	var expiresAt sql.NullInt64
	err := row.Scan(&b.IPAddress, &b.Reason, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find blacklist entry for %s: %w", ip, err)
	}
	b.CreatedAt = time.UnixMilli(createdAt)
	if expiresAt.Valid {
		t := time.UnixMilli(expiresAt.Int64)
		b.ExpiresAt = &t
	}
	return &b, nil
}

// DeleteExpired removes blacklist rows whose expiry has passed.
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ip_blacklist WHERE expires_at IS NOT NULL AND expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired blacklist entries: %w", err)
	}
	return res.RowsAffected()
}

// Insert persists a single audit record.
func (s *SQLStore) Insert(ctx context.Context, row *AuditRow) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO audit_records (
		request_id, route_id, method, path, query_params, client_ip, user_agent,
		request_headers, response_headers, request_body, response_body,
		response_status, processing_time_ms, error_message, created_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		row.RequestID, row.RouteID, row.Method, row.Path, row.QueryParams,
		row.ClientIP, row.UserAgent, row.RequestHeaders, row.ResponseHeaders,
		row.RequestBody, row.ResponseBody, row.ResponseStatus,
		row.ProcessingTimeMs, row.ErrorMessage, row.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert audit record %s: %w", row.RequestID, err)
	}
	return nil
}

// InsertRoute inserts or replaces a route row. Intended for operator tooling
// and tests; the request path never writes routes.
func (s *SQLStore) InsertRoute(ctx context.Context, r *RouteRow) error {
	enabled := 0
	if r.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO routes (
		route_id, path_pattern, upstream_uri, method, enabled,
		rate_limit_requests, rate_limit_period_seconds, description,
		created_at, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.RouteID, r.PathPattern, r.UpstreamURI, r.Method, enabled,
		r.RateLimitRequests, r.RateLimitPeriodSeconds, r.Description,
		r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert route %s: %w", r.RouteID, err)
	}
	return nil
}

// InsertBlacklistEntry inserts or replaces a blacklist row. Intended for
// operator tooling and tests.
func (s *SQLStore) InsertBlacklistEntry(ctx context.Context, b *BlacklistRow) error {
	var expiresAt interface{}
	if b.ExpiresAt != nil {
		expiresAt = b.ExpiresAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO ip_blacklist (
		ip_address, reason, created_at, expires_at
	) VALUES (?,?,?,?)`,
		b.IPAddress, b.Reason, b.CreatedAt.UnixMilli(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert blacklist entry %s: %w", b.IPAddress, err)
	}
	return nil
}
