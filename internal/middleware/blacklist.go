package middleware

import (
	"net/http"

	"github.com/nopaper/gateway/internal/blacklist"
	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
)

// Blacklist returns a middleware that rejects requests from blacklisted
// client IPs with a 403 envelope. It runs before route matching so banned
// clients never reach the proxy.
func Blacklist(guard *blacklist.Guard, logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if guard.IsBlacklisted(r.Context(), ip) {
				requestID := observability.RequestIDFromContext(r.Context())
				logger.Warn("blocked blacklisted client",
					observability.String("ip", ip),
					observability.String("path", r.URL.Path),
					observability.String("request_id", requestID),
				)
				httperror.Write(w, r, requestID, httperror.Classification{
					Status:    http.StatusForbidden,
					ErrorCode: httperror.CodeIPBlacklisted,
					ErrorType: "BlacklistError",
					Message:   "Access denied for IP " + ip,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
