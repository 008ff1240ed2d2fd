package query

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"bizdash/internal/platform/gateway"
)

// RetryPolicy bounds how transient failures are retried. MaxRetries counts retries
// after the first attempt.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// Retryable decides which errors are transient; defaults to gateway.Retryable.
	Retryable func(error) bool
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = time.Second
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 30 * time.Second
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Retryable == nil {
		p.Retryable = gateway.Retryable
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)
}

// run calls fetch until it succeeds, fails permanently, or retries run out. Non
// transient errors (AuthError, DecodeError, 4xx) stop immediately.
func (p RetryPolicy) run(ctx context.Context, fetch fetchFunc, onRetry func(attempt int, err error)) (any, error) {
	var (
		result  any
		attempt int
	)
	operation := func() error {
		attempt++
		value, err := fetch(ctx)
		if err != nil {
			if ctx.Err() != nil || !p.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = value
		return nil
	}
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	if err := backoff.RetryNotify(operation, p.backOff(ctx), notify); err != nil {
		return nil, err
	}
	return result, nil
}
