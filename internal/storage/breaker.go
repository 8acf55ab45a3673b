package storage

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"github.com/ternarybob/arbor"
)

// BreakerSettings tunes the circuit breaker
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening
	RecoveryTimeout  time.Duration // open duration before half-open
	SuccessThreshold uint32        // half-open successes before closing
}

// DefaultBreakerSettings: open after 5 consecutive failures, stay open 60s,
// close after 3 half-open successes.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 3,
	}
}

// Breaker wraps a shared circuit breaker around storage operations. Only
// transient transport failures count against it; domain errors (validation,
// not-found, duplicates) pass through as successes.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger arbor.ILogger
}

// NewBreaker creates a circuit breaker with the given settings
func NewBreaker(name string, settings BreakerSettings, logger arbor.ILogger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.SuccessThreshold,
		Timeout:     settings.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state change")
		},
	})
	return &Breaker{cb: cb, logger: logger}
}

// Execute runs op through the breaker. When the breaker is open the call is
// rejected fast without invoking op.
func (b *Breaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	return err
}

// State returns the current breaker state name
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// IsBreakerOpen reports whether err is a breaker fast-fail rejection
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
