package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nopaper/gateway/internal/observability"
)

// ResponseMetadata identifies the request inside the success envelope.
type ResponseMetadata struct {
	RequestID string `json:"requestId"`
	Path      string `json:"path"`
	Method    string `json:"method"`
}

// ResponseEnvelope is the standard wrapper for templated responses.
type ResponseEnvelope struct {
	Timestamp string           `json:"timestamp"`
	Status    int              `json:"status"`
	Success   bool             `json:"success"`
	Data      interface{}      `json:"data"`
	Metadata  ResponseMetadata `json:"metadata"`
}

// Templating returns a middleware that buffers the upstream response and
// re-emits it inside the standard envelope. A request carrying
// X-Response-Format: raw bypasses buffering entirely. Bodies larger than
// maxBufferBytes are streamed through unwrapped; rewriting them would
// require unbounded memory.
func Templating(maxBufferBytes int64, logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get(HeaderXResponseFormat) == ResponseFormatRaw {
				templatingBypassTotal.WithLabelValues("raw").Inc()
				next.ServeHTTP(w, r)
				return
			}

			bw := &bufferingWriter{
				underlying: w,
				maxBytes:   maxBufferBytes,
				status:     http.StatusOK,
			}
			next.ServeHTTP(bw, r)

			if bw.overflowed {
				// Headers and buffered bytes were already flushed.
				templatingBypassTotal.WithLabelValues("overflow").Inc()
				return
			}

			if bw.errorEnvelope {
				// Classified errors already carry their own envelope.
				w.WriteHeader(bw.status)
				_, _ = w.Write(bw.buf.Bytes())
				return
			}

			writeEnvelope(w, r, bw, logger)
		})
	}
}

// writeEnvelope wraps the buffered body and emits the final response. Any
// serialization failure falls back to the original bytes.
func writeEnvelope(w http.ResponseWriter, r *http.Request, bw *bufferingWriter, logger observability.Logger) {
	body := bw.buf.Bytes()

	var data interface{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &data); err != nil {
			data = string(body)
		}
	}

	envelope := ResponseEnvelope{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Status:    bw.status,
		Success:   bw.status >= 200 && bw.status < 300,
		Data:      data,
		Metadata: ResponseMetadata{
			RequestID: observability.RequestIDFromContext(r.Context()),
			Path:      r.URL.Path,
			Method:    r.Method,
		},
	}

	wrapped, err := json.Marshal(envelope)
	if err != nil {
		logger.Warn("response envelope serialization failed, emitting raw body",
			observability.Error(err),
		)
		w.WriteHeader(bw.status)
		_, _ = w.Write(body)
		return
	}

	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.Header().Set(HeaderContentLength, strconv.Itoa(len(wrapped)))
	w.WriteHeader(bw.status)
	_, _ = w.Write(wrapped)
}

// bufferingWriter collects the response until completion, or until the
// buffer cap is hit, at which point it flushes what it has and streams the
// rest through untouched.
type bufferingWriter struct {
	underlying    http.ResponseWriter
	maxBytes      int64
	buf           bytes.Buffer
	status        int
	overflowed    bool
	errorEnvelope bool
}

// MarkErrorEnvelope flags the buffered body as an already-classified
// error envelope that must not be wrapped again.
func (bw *bufferingWriter) MarkErrorEnvelope() {
	bw.errorEnvelope = true
}

// Header returns the underlying header map so upstream headers survive.
func (bw *bufferingWriter) Header() http.Header {
	return bw.underlying.Header()
}

// WriteHeader records the status without forwarding it; the final status
// is written when the envelope is emitted.
func (bw *bufferingWriter) WriteHeader(status int) {
	if bw.overflowed {
		return
	}
	bw.status = status
}

// Write buffers until the cap is exceeded, then switches to streaming.
func (bw *bufferingWriter) Write(p []byte) (int, error) {
	if bw.overflowed {
		return bw.underlying.Write(p)
	}

	if int64(bw.buf.Len()+len(p)) > bw.maxBytes {
		bw.overflowed = true
		bw.underlying.WriteHeader(bw.status)
		if bw.buf.Len() > 0 {
			if _, err := bw.underlying.Write(bw.buf.Bytes()); err != nil {
				return 0, err
			}
			bw.buf.Reset()
		}
		return bw.underlying.Write(p)
	}

	return bw.buf.Write(p)
}
