package httperror

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the standard error response body.
type Envelope struct {
	Timestamp string `json:"timestamp"`
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	ErrorType string `json:"errorType"`
	Path      string `json:"path"`
	RequestID string `json:"requestId"`
	Method    string `json:"method"`
}

// errorMarker is implemented by response writers that must know the body
// they receive is an already-classified error envelope.
type errorMarker interface {
	MarkErrorEnvelope()
}

// Write emits the classification as a JSON error envelope. It must be
// called before any response bytes have been flushed.
func Write(w http.ResponseWriter, r *http.Request, requestID string, c Classification) {
	if m, ok := w.(errorMarker); ok {
		m.MarkErrorEnvelope()
	}
	body := Envelope{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Status:    c.Status,
		Error:     http.StatusText(c.Status),
		Message:   c.Message,
		ErrorCode: c.ErrorCode,
		ErrorType: c.ErrorType,
		Path:      r.URL.Path,
		RequestID: requestID,
		Method:    r.Method,
	}

	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, c.Message, c.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(c.Status)
	_, _ = w.Write(data)
}

// WriteError classifies err and emits the envelope in one call.
func WriteError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	Write(w, r, requestID, Classify(err))
}
