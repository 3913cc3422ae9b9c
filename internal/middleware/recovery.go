package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
)

// Recovery returns a middleware that converts panics into a classified
// 500 envelope.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					stack := debug.Stack()
					requestID := observability.RequestIDFromContext(r.Context())

					logger.Error("panic recovered",
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.String("request_id", requestID),
						observability.Any("error", err),
						observability.String("stack", string(stack)),
					)

					if rec := audit.RecordFromContext(r.Context()); rec != nil {
						rec.ErrorMessage = fmt.Sprintf("panic: %v", err)
					}

					httperror.Write(w, r, requestID, httperror.Classification{
						Status:    http.StatusInternalServerError,
						ErrorCode: httperror.CodeInternalError,
						ErrorType: "PanicError",
						Message:   "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
