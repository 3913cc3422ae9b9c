package middleware

import (
	"net/http"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/routing"
)

// RouteMatch returns a middleware that matches the request against the
// active route table and attaches the matched definition to the request
// context. An unmatched request is answered with a 404 envelope.
func RouteMatch(routes *routing.Cache, logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			def := routes.Table(r.Context()).Match(r.Method, r.URL.Path)
			if def == nil {
				requestID := observability.RequestIDFromContext(r.Context())
				logger.Debug("no matching route",
					observability.String("method", r.Method),
					observability.String("path", r.URL.Path),
				)
				httperror.Write(w, r, requestID, httperror.Classification{
					Status:    http.StatusNotFound,
					ErrorCode: httperror.CodeRouteNotFound,
					ErrorType: "RoutingError",
					Message:   "No route matches " + r.Method + " " + r.URL.Path,
				})
				return
			}

			if rec := audit.RecordFromContext(r.Context()); rec != nil {
				rec.RouteID = def.RouteID
			}

			r = r.WithContext(routing.ContextWithRoute(r.Context(), def))
			next.ServeHTTP(w, r)
		})
	}
}
