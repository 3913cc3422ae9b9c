package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of gateway requests by method and status class",
		},
		[]string{"method", "status_class"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Gateway request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	templatingBypassTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_templating_bypass_total",
			Help: "Total number of responses that bypassed the templating envelope",
		},
		[]string{"reason"},
	)
)

// Metrics returns a middleware that records request totals and latency.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusRecorder(w, false)

			next.ServeHTTP(sw, r)

			requestsTotal.WithLabelValues(r.Method, statusClass(sw.status)).Inc()
			requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// statusClass collapses a status code into its class ("2xx", "4xx", ...).
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
