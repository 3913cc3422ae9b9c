package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the client IP from a request. Precedence:
// X-Forwarded-For (first entry), X-Real-IP, the Forwarded header's for=
// parameter, then the peer address. Returns "unknown" when nothing
// usable is present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get(HeaderXForwardedFor); xff != "" {
		if ip := firstForwardedEntry(xff); ip != "" {
			return ip
		}
	}

	if realIP := strings.TrimSpace(r.Header.Get(HeaderXRealIP)); realIP != "" {
		return realIP
	}

	if forwarded := r.Header.Get(HeaderForwarded); forwarded != "" {
		if ip := parseForwardedFor(forwarded); ip != "" {
			return ip
		}
	}

	if host := stripPort(r.RemoteAddr); host != "" {
		return host
	}

	return UnknownClientIP
}

// firstForwardedEntry returns the first non-empty entry of a
// comma-separated X-Forwarded-For value.
func firstForwardedEntry(xff string) string {
	for _, part := range strings.Split(xff, ",") {
		if ip := strings.TrimSpace(part); ip != "" {
			return ip
		}
	}
	return ""
}

// parseForwardedFor extracts the for= parameter from an RFC 7239
// Forwarded header value.
func parseForwardedFor(forwarded string) string {
	// Only the first element matters; subsequent ones name earlier proxies.
	first := forwarded
	if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
		first = forwarded[:idx]
	}

	for _, pair := range strings.Split(first, ";") {
		pair = strings.TrimSpace(pair)
		if len(pair) < 4 || !strings.EqualFold(pair[:4], "for=") {
			continue
		}
		value := strings.Trim(pair[4:], `"`)
		// Values may be "ip", "ip:port", or "[ipv6]:port".
		if host := stripPort(value); host != "" {
			return strings.Trim(host, "[]")
		}
		return strings.Trim(value, "[]")
	}
	return ""
}

// stripPort removes the port from an address string. Handles both IPv4
// ("192.168.1.1:8080") and IPv6 ("[::1]:8080") formats.
func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
