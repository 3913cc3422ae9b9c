package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
)

func templatingHandler(maxBytes int64, upstream http.HandlerFunc) http.Handler {
	return Templating(maxBytes, observability.NopLogger())(upstream)
}

func TestTemplating_WrapsJSONBody(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":42}`))
	})

	r := httptest.NewRequest(http.MethodPost, "/api/orders", nil)
	r = r.WithContext(observability.ContextWithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, ContentTypeJSON, w.Header().Get(HeaderContentType))

	var envelope ResponseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))

	assert.Equal(t, http.StatusCreated, envelope.Status)
	assert.True(t, envelope.Success)
	assert.Equal(t, map[string]interface{}{"id": float64(42)}, envelope.Data)
	assert.Equal(t, "req-1", envelope.Metadata.RequestID)
	assert.Equal(t, "/api/orders", envelope.Metadata.Path)
	assert.Equal(t, http.MethodPost, envelope.Metadata.Method)
	assert.NotEmpty(t, envelope.Timestamp)
}

func TestTemplating_NonJSONBodyBecomesString(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text"))
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var envelope ResponseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "plain text", envelope.Data)
}

func TestTemplating_ErrorStatusNotSuccess(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"detail":"down"}`))
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var envelope ResponseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, http.StatusBadGateway, envelope.Status)
	assert.False(t, envelope.Success)
}

func TestTemplating_EmptyBody(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)

	var envelope ResponseEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Nil(t, envelope.Data)
	assert.True(t, envelope.Success)
}

func TestTemplating_RawFormatBypasses(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("raw body"))
	})

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderXResponseFormat, ResponseFormatRaw)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "raw body", w.Body.String())
}

func TestTemplating_OversizedBodyStreamsThrough(t *testing.T) {
	large := strings.Repeat("x", 1024)
	handler := templatingHandler(100, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 4; i++ {
			_, _ = w.Write([]byte(large))
		}
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4096, w.Body.Len(), "oversized bodies must pass through unwrapped")
	assert.NotContains(t, w.Body.String(), `"metadata"`)
}

func TestTemplating_ClassifiedErrorNotDoubleWrapped(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		httperror.Write(w, r, "req-9", httperror.Classification{
			Status:    http.StatusServiceUnavailable,
			ErrorCode: httperror.CodeServiceUnavailable,
			ErrorType: "ConnectionError",
			Message:   "Service temporarily unavailable",
		})
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var envelope httperror.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, httperror.CodeServiceUnavailable, envelope.ErrorCode)
	assert.Equal(t, "req-9", envelope.RequestID)
	assert.NotContains(t, w.Body.String(), `"metadata"`)
}

func TestTemplating_UpstreamHeadersSurvive(t *testing.T) {
	handler := templatingHandler(1<<20, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "orders")
		_, _ = w.Write([]byte(`{}`))
	})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "orders", w.Header().Get("X-Upstream"))
}
