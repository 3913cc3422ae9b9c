package ratelimit

import (
	"net/http"
	"strings"

	"github.com/nopaper/gateway/internal/routing"
)

// Sentinel key components used when a part of the composite identity is
// unavailable.
const (
	UnknownRoute  = "unknown-route"
	AnonymousUser = "anonymous"
)

// KeyFunc computes the rate-limit identity for a request.
type KeyFunc func(r *http.Request) string

// UserFunc extracts a user identity from a request. Returns empty when the
// request carries no identity. Authentication is not part of the gateway
// core, so the default resolver treats every request as anonymous.
type UserFunc func(r *http.Request) string

// CompositeKeyFunc builds the standard composite identity
// clientIP:routeID:userID. The route ID comes from the request context set
// during route matching; ipFrom supplies the client IP. A nil userFrom
// yields the anonymous sentinel for every request.
func CompositeKeyFunc(ipFrom func(r *http.Request) string, userFrom UserFunc) KeyFunc {
	return func(r *http.Request) string {
		ip := ipFrom(r)

		routeID := UnknownRoute
		if def := routing.RouteFromContext(r.Context()); def != nil {
			routeID = def.RouteID
		}

		user := ""
		if userFrom != nil {
			user = userFrom(r)
		}
		if user == "" {
			user = AnonymousUser
		}

		var b strings.Builder
		b.Grow(len(ip) + len(routeID) + len(user) + 2)
		b.WriteString(ip)
		b.WriteByte(':')
		b.WriteString(routeID)
		b.WriteByte(':')
		b.WriteString(user)
		return b.String()
	}
}
