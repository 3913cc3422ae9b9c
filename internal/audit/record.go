// Package audit captures request/response metadata and persists it off
// the request path.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/nopaper/gateway/internal/store"
)

const redactedValue = "[REDACTED]"

// sensitiveHeaderParts marks headers whose values must never be persisted.
var sensitiveHeaderParts = []string{
	"authorization",
	"password",
	"token",
	"secret",
	"api-key",
	"cookie",
}

// Record accumulates the audit data for one request. It is built up
// during the request lifecycle and converted to a store row exactly once.
type Record struct {
	RequestID       string
	RouteID         string
	Method          string
	Path            string
	QueryParams     string
	ClientIP        string
	UserAgent       string
	RequestHeaders  http.Header
	ResponseHeaders http.Header
	RequestBody     string
	ResponseBody    string
	ResponseStatus  int
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// NewRecord captures the request-phase fields of an audit record.
func NewRecord(requestID, clientIP string, r *http.Request, now time.Time) *Record {
	return &Record{
		RequestID:      requestID,
		Method:         r.Method,
		Path:           r.URL.Path,
		QueryParams:    r.URL.RawQuery,
		ClientIP:       clientIP,
		UserAgent:      r.UserAgent(),
		RequestHeaders: r.Header.Clone(),
		StartedAt:      now,
	}
}

// ProcessingTime returns the request latency, or the elapsed time so far
// when the response phase never completed.
func (rec *Record) ProcessingTime(now time.Time) time.Duration {
	if rec.FinishedAt.IsZero() {
		return now.Sub(rec.StartedAt)
	}
	return rec.FinishedAt.Sub(rec.StartedAt)
}

// ToRow converts the record to a store row, redacting sensitive headers.
func (rec *Record) ToRow(now time.Time) *store.AuditRow {
	return &store.AuditRow{
		RequestID:        rec.RequestID,
		RouteID:          rec.RouteID,
		Method:           rec.Method,
		Path:             rec.Path,
		QueryParams:      rec.QueryParams,
		ClientIP:         rec.ClientIP,
		UserAgent:        rec.UserAgent,
		RequestHeaders:   marshalRedacted(rec.RequestHeaders),
		ResponseHeaders:  marshalRedacted(rec.ResponseHeaders),
		RequestBody:      rec.RequestBody,
		ResponseBody:     rec.ResponseBody,
		ResponseStatus:   rec.ResponseStatus,
		ProcessingTimeMs: rec.ProcessingTime(now).Milliseconds(),
		ErrorMessage:     rec.ErrorMessage,
		CreatedAt:        now,
	}
}

// marshalRedacted serializes headers to JSON with sensitive values
// replaced.
func marshalRedacted(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	redacted := make(map[string][]string, len(h))
	for name, values := range h {
		if isSensitiveHeader(name) {
			redacted[name] = []string{redactedValue}
			continue
		}
		redacted[name] = values
	}
	data, err := json.Marshal(redacted)
	if err != nil {
		return ""
	}
	return string(data)
}

// contextKey is the type for context keys owned by this package.
type contextKey struct{}

var recordContextKey contextKey

// ContextWithRecord attaches the in-flight audit record to the context so
// inner pipeline stages can contribute fields (route ID, error message).
func ContextWithRecord(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, recordContextKey, rec)
}

// RecordFromContext returns the in-flight audit record, or nil when
// auditing is disabled.
func RecordFromContext(ctx context.Context) *Record {
	if rec, ok := ctx.Value(recordContextKey).(*Record); ok {
		return rec
	}
	return nil
}

// isSensitiveHeader reports whether the header name contains any of the
// sensitive markers.
func isSensitiveHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, part := range sensitiveHeaderParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
