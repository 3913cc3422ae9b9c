package middleware

import (
	"bytes"
	"net/http"
)

// maxCapturedBodyBytes caps how much of a body the audit middleware keeps.
const maxCapturedBodyBytes = 64 << 10

// statusRecorder wraps http.ResponseWriter to observe the status code and
// optionally a bounded copy of the body.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	captureBody bool
	body        bytes.Buffer
	truncated   bool
}

func newStatusRecorder(w http.ResponseWriter, captureBody bool) *statusRecorder {
	return &statusRecorder{
		ResponseWriter: w,
		status:         http.StatusOK,
		captureBody:    captureBody,
	}
}

// WriteHeader records the status code.
func (rec *statusRecorder) WriteHeader(status int) {
	if !rec.wroteHeader {
		rec.status = status
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(status)
}

// Write captures a bounded prefix of the body when enabled.
func (rec *statusRecorder) Write(p []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if rec.captureBody && !rec.truncated {
		remaining := maxCapturedBodyBytes - rec.body.Len()
		if remaining >= len(p) {
			rec.body.Write(p)
		} else {
			rec.body.Write(p[:remaining])
			rec.truncated = true
		}
	}
	return rec.ResponseWriter.Write(p)
}

// Flush implements http.Flusher when the underlying writer does.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
