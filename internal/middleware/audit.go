package middleware

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/observability"
)

// AuditConfig controls what the audit middleware captures.
type AuditConfig struct {
	LogRequestBody  bool
	LogResponseBody bool
}

// Audit returns the middleware that opens an audit record before any other
// pipeline stage and enqueues it once the response has been written. The
// record rides the request context so inner stages can contribute fields.
// Enqueueing failures never affect the client response.
func Audit(recorder *audit.Recorder, cfg AuditConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := observability.RequestIDFromContext(r.Context())
			rec := audit.NewRecord(requestID, ClientIP(r), r, time.Now())

			if cfg.LogRequestBody && r.Body != nil {
				rec.RequestBody = captureRequestBody(r)
			}

			r = r.WithContext(audit.ContextWithRecord(r.Context(), rec))

			sw := newStatusRecorder(w, cfg.LogResponseBody)
			next.ServeHTTP(sw, r)

			rec.FinishedAt = time.Now()
			rec.ResponseStatus = sw.status
			rec.ResponseHeaders = sw.Header().Clone()
			if cfg.LogResponseBody {
				rec.ResponseBody = sw.body.String()
			}

			recorder.Record(rec)
		})
	}
}

// captureRequestBody reads a bounded prefix of the request body and
// splices it back so downstream handlers see the full stream.
func captureRequestBody(r *http.Request) string {
	buf := make([]byte, maxCapturedBodyBytes)
	n, _ := io.ReadFull(r.Body, buf)
	captured := buf[:n]

	rest := r.Body
	r.Body = &spliceReadCloser{
		Reader: io.MultiReader(bytes.NewReader(captured), rest),
		closer: rest,
	}
	return string(captured)
}

// spliceReadCloser joins a buffered prefix with the remaining body stream.
type spliceReadCloser struct {
	io.Reader
	closer io.Closer
}

func (s *spliceReadCloser) Close() error {
	return s.closer.Close()
}
