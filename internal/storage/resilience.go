package storage

import (
	"context"

	"github.com/ternarybob/arbor"
)

// Resilience combines the retry policy and the circuit breaker. Every store
// operation funnels through Execute so transport faults are retried,
// counted, and eventually surfaced as ConnectionError.
type Resilience struct {
	retry   RetryPolicy
	breaker *Breaker
	logger  arbor.ILogger
}

// NewResilience builds the shared resilience wrapper
func NewResilience(retry RetryPolicy, breaker *Breaker, logger arbor.ILogger) *Resilience {
	return &Resilience{retry: retry, breaker: breaker, logger: logger}
}

// NewDefaultResilience builds a resilience wrapper with default settings
func NewDefaultResilience(name string, logger arbor.ILogger) *Resilience {
	return NewResilience(DefaultRetryPolicy(), NewBreaker(name, DefaultBreakerSettings(), logger), logger)
}

// Execute runs op under retry + breaker. Transient failures that exhaust the
// retry budget, and breaker rejections, come back as ConnectionError; all
// other errors pass through unchanged in kind.
func (r *Resilience) Execute(ctx context.Context, operation string, op func() error) error {
	err := r.retry.Execute(ctx, func() error {
		return r.breaker.Execute(op)
	})
	if err == nil {
		return nil
	}

	if IsBreakerOpen(err) {
		r.logger.Warn().Str("operation", operation).Msg("Storage operation rejected by open circuit breaker")
		return &ConnectionError{Operation: operation, Cause: err}
	}
	if IsTransient(err) {
		r.logger.Warn().Err(err).Str("operation", operation).Msg("Storage operation failed after retries")
		return &ConnectionError{Operation: operation, Cause: err}
	}
	return err
}

// BreakerState exposes the breaker state for health reporting
func (r *Resilience) BreakerState() string {
	return r.breaker.State()
}
