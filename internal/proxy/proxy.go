// Package proxy forwards matched requests to their route's upstream.
package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/nopaper/gateway/internal/audit"
	"github.com/nopaper/gateway/internal/httperror"
	"github.com/nopaper/gateway/internal/observability"
	"github.com/nopaper/gateway/internal/routing"
)

// hopHeaders are headers that should not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Proxy forwards requests to the upstream named by the matched route. It
// is the terminal handler of the filter pipeline.
type Proxy struct {
	logger          observability.Logger
	transport       http.RoundTripper
	upstreamTimeout time.Duration
}

// Option is a functional option for configuring the proxy.
type Option func(*Proxy)

// WithLogger sets the logger for the proxy.
func WithLogger(logger observability.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithTransport sets the transport used for upstream calls.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithUpstreamTimeout bounds each upstream call.
func WithUpstreamTimeout(timeout time.Duration) Option {
	return func(p *Proxy) {
		p.upstreamTimeout = timeout
	}
}

// New creates a proxy.
func New(opts ...Option) *Proxy {
	p := &Proxy{
		logger:          observability.NopLogger(),
		upstreamTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServeHTTP implements http.Handler. The matched route must already be
// attached to the request context.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	def := routing.RouteFromContext(r.Context())
	if def == nil {
		p.handleError(w, r, fmt.Errorf("no route attached to request"))
		return
	}

	target, err := url.Parse(def.UpstreamURI)
	if err != nil {
		p.handleError(w, r, fmt.Errorf("invalid upstream URI for route %s: %w", def.RouteID, err))
		return
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			p.director(pr.Out, target, r)
		},
		Transport:     p.transport,
		FlushInterval: -1,
		ErrorHandler:  p.handleError,
	}

	if p.upstreamTimeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), p.upstreamTimeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	rp.ServeHTTP(w, r)
}

// director modifies the request before forwarding.
func (p *Proxy) director(req *http.Request, target *url.URL, originalReq *http.Request) {
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host

	if target.Path != "" && target.Path != "/" {
		req.URL.Path = singleJoin(target.Path, originalReq.URL.Path)
	}

	if originalReq.URL.RawQuery != "" {
		req.URL.RawQuery = originalReq.URL.RawQuery
	}

	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(originalReq.RemoteAddr); err == nil {
		if prior := originalReq.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}

	if originalReq.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}

	req.Header.Set("X-Forwarded-Host", originalReq.Host)

	req.Host = target.Host
}

// singleJoin joins two path segments with exactly one slash.
func singleJoin(a, b string) string {
	aSlash := len(a) > 0 && a[len(a)-1] == '/'
	bSlash := len(b) > 0 && b[0] == '/'
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}

// handleError classifies the upstream failure and writes the error
// envelope. The audit record, if any, captures the failure message.
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := observability.RequestIDFromContext(r.Context())

	p.logger.Error("upstream call failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("request_id", requestID),
		observability.Error(err),
	)

	if rec := audit.RecordFromContext(r.Context()); rec != nil {
		rec.ErrorMessage = err.Error()
	}

	httperror.WriteError(w, r, requestID, err)
}
