package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions",
		},
		[]string{"decision"},
	)

	failOpenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_ratelimit_fail_open_total",
			Help: "Total number of fail-open decisions caused by backend errors",
		},
		[]string{"component"},
	)

	checkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_ratelimit_check_duration_seconds",
			Help:    "Duration of rate limit checks in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
		},
	)
)
