// Package middleware provides the HTTP middleware that makes up the
// gateway filter pipeline.
package middleware

// HTTP header constants.
const (
	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderContentLength is the Content-Length header name.
	HeaderContentLength = "Content-Length"

	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"

	// HeaderXForwardedFor is the X-Forwarded-For header name.
	HeaderXForwardedFor = "X-Forwarded-For"

	// HeaderXRealIP is the X-Real-IP header name.
	HeaderXRealIP = "X-Real-IP"

	// HeaderForwarded is the RFC 7239 Forwarded header name.
	HeaderForwarded = "Forwarded"

	// HeaderXResponseFormat selects the response templating mode.
	HeaderXResponseFormat = "X-Response-Format"
)

// X-Response-Format values.
const (
	// ResponseFormatStandard wraps the response in the standard envelope.
	ResponseFormatStandard = "standard"

	// ResponseFormatRaw passes the upstream response through unchanged.
	ResponseFormatRaw = "raw"
)

// ContentTypeJSON is the JSON content type.
const ContentTypeJSON = "application/json"

// UnknownClientIP is used when no client address can be determined.
const UnknownClientIP = "unknown"
