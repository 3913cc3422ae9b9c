package middleware

import (
	"net/http"
	"strconv"

	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/ratelimit"
	"github.com/nopaper/gateway/internal/routing"
)

// RateLimit returns a middleware that enforces the matched route's quota.
// The limit key is computed per request by keyFn. Routes without a quota
// pass through unchecked. Denials answer 429 with a Retry-After hint of
// the route's window.
func RateLimit(
	limiter ratelimit.Limiter,
	keyFn ratelimit.KeyFunc,
	logger observability.Logger,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			def := routing.RouteFromContext(r.Context())
			if def == nil || !def.RateLimited() {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			allowed, err := limiter.CheckAndIncrement(r.Context(), key, def.BurstCapacity(), def.Period())
			if err != nil {
				// The limiter itself fails open; an error here means a
				// programming mistake, not a backend outage.
				logger.Error("rate limit check error",
					observability.String("key", key),
					observability.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				requestID := observability.RequestIDFromContext(r.Context())
				w.Header().Set(HeaderRetryAfter, strconv.Itoa(def.RateLimitPeriodSeconds))
				httperror.Write(w, r, requestID, httperror.Classification{
					Status:    http.StatusTooManyRequests,
					ErrorCode: httperror.CodeRateLimitExceeded,
					ErrorType: "RateLimitError",
					Message:   "Rate limit exceeded for route " + def.RouteID,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
