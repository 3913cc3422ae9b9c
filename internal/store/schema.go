package store

// createDDL defines the gateway schema. Routes and blacklist entries are
// written by operator tooling; the gateway only reads them. Audit records
// are written by the gateway.
const createDDL = `
CREATE TABLE IF NOT EXISTS routes (
	route_id                  TEXT PRIMARY KEY,
	path_pattern              TEXT NOT NULL,
	upstream_uri              TEXT NOT NULL,
	method                    TEXT NOT NULL DEFAULT '',
	enabled                   INTEGER NOT NULL DEFAULT 1,
	rate_limit_requests       INTEGER NOT NULL DEFAULT 0,
	rate_limit_period_seconds INTEGER NOT NULL DEFAULT 60,
	description               TEXT NOT NULL DEFAULT '',
	created_at                INTEGER NOT NULL,
	updated_at                INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ip_blacklist (
	ip_address TEXT PRIMARY KEY,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER
);

CREATE TABLE IF NOT EXISTS audit_records (
	request_id         TEXT PRIMARY KEY,
	route_id           TEXT NOT NULL DEFAULT '',
	method             TEXT NOT NULL DEFAULT '',
	path               TEXT NOT NULL DEFAULT '',
	query_params       TEXT NOT NULL DEFAULT '',
	client_ip          TEXT NOT NULL DEFAULT '',
	user_agent         TEXT NOT NULL DEFAULT '',
	request_headers    TEXT NOT NULL DEFAULT '',
	response_headers   TEXT NOT NULL DEFAULT '',
	request_body       TEXT NOT NULL DEFAULT '',
	response_body      TEXT NOT NULL DEFAULT '',
	response_status    INTEGER NOT NULL DEFAULT 0,
	processing_time_ms INTEGER NOT NULL DEFAULT 0,
	error_message      TEXT NOT NULL DEFAULT '',
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_routes_enabled          ON routes(enabled);
CREATE INDEX IF NOT EXISTS idx_ip_blacklist_expires_at ON ip_blacklist(expires_at);
CREATE INDEX IF NOT EXISTS idx_audit_created_at        ON audit_records(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_route_id          ON audit_records(route_id);
CREATE INDEX IF NOT EXISTS idx_audit_client_ip         ON audit_records(client_ip);
`
