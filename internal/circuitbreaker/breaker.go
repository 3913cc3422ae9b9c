// Package circuitbreaker wraps gobreaker for the gateway's backend
// dependency calls. Blacklist and rate-limit lookups run behind a breaker
// so a dead cache or store trips quickly instead of adding a timeout to
// every request.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/nopaper/gateway/internal/observability"
)

// Breaker wraps gobreaker.CircuitBreaker with gateway logging and metrics.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// Option is a functional option for configuring the breaker.
type Option func(*Breaker)

// WithLogger sets the logger for the breaker.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// New creates a breaker. The circuit opens when at least threshold requests
// have been observed in the sampling interval and half of them failed; it
// transitions to half-open after timeout.
func New(name string, threshold int, timeout time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	thresholdU32 := safeIntToUint32(threshold)

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			recordStateChange(name, to)
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Execute runs fn behind the breaker. When the circuit is open, fn is not
// called and gobreaker.ErrOpenState is returned.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// State returns the current state of the breaker.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the name of the breaker.
func (b *Breaker) Name() string {
	return b.cb.Name()
}
