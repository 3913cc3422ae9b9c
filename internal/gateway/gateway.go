// Package gateway assembles the request-handling pipeline.
package gateway

import (
	"net/http"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/blacklist"
	"github.com/nopaper/gateway/internal/middleware"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/ratelimit"
	"github.com/nopaper/gateway/internal/routing"
)

// Options holds the components wired into the pipeline. Routes is
// required; nil optional components disable their stage.
type Options struct {
	Logger   observability.Logger
	Routes   *routing.Cache
	Guard    *blacklist.Guard
	Limiter  ratelimit.Limiter
	KeyFunc  ratelimit.KeyFunc
	Recorder *audit.Recorder
	Upstream http.Handler

	AuditRequestBody   bool
	AuditResponseBody  bool
	TemplatingEnabled  bool
	TemplatingMaxBytes int64
}

// New builds the filter pipeline around the upstream handler. The stage
// order is fixed: request metrics, request ID assignment, audit capture,
// panic recovery, blacklist gate, route matching, per-route rate
// limiting, response templating, then the proxy call. Short-circuit
// responses (403, 404, 429) skip every later stage including templating.
func New(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	keyFn := opts.KeyFunc
	if keyFn == nil {
		keyFn = ratelimit.CompositeKeyFunc(middleware.ClientIP, nil)
	}

	handler := opts.Upstream

	if opts.TemplatingEnabled {
		handler = middleware.Templating(opts.TemplatingMaxBytes, logger)(handler)
	}

	if opts.Limiter != nil {
		handler = middleware.RateLimit(opts.Limiter, keyFn, logger)(handler)
	}

	handler = middleware.RouteMatch(opts.Routes, logger)(handler)

	if opts.Guard != nil {
		handler = middleware.Blacklist(opts.Guard, logger)(handler)
	}

	handler = middleware.Recovery(logger)(handler)

	if opts.Recorder != nil {
		handler = middleware.Audit(opts.Recorder, middleware.AuditConfig{
			LogRequestBody:  opts.AuditRequestBody,
			LogResponseBody: opts.AuditResponseBody,
		})(handler)
	}

	handler = middleware.RequestID()(handler)

	handler = middleware.Metrics()(handler)

	return handler
}
