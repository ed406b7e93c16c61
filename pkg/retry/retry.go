// Package retry re-runs idempotent operations that failed with an error
// reporting itself as retryable.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"incidentdb/internal/config"
)

// Retryable is implemented by errors that know whether repeating the
// operation can succeed. Errors not implementing it are never retried.
type Retryable interface {
	error
	IsRetryable() bool
}

type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

// DefaultPolicy allows one retry after a short pause.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     2,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Second,
	}
}

func PolicyFromConfig(cfg config.RetryConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxAttempts > 0 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		p.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		p.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier >= 1 {
		p.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		p.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return p
}

// IsRetryable reports whether err asks to be retried.
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.IsRetryable()
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy
// is exhausted. The last error from fn is returned unwrapped.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	return DoWithCallback(ctx, policy, fn, nil)
}

// DoWithCallback is Do with a hook invoked before every retry.
func DoWithCallback(ctx context.Context, policy Policy, fn func(ctx context.Context) error, onRetry func(attempt int, err error, delay time.Duration)) error {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(policy), uint64(policy.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	var last error
	operation := func() error {
		attempt++
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !IsRetryable(last) {
			return backoff.Permanent(last)
		}
		if onRetry != nil && attempt < policy.MaxAttempts {
			onRetry(attempt, last, delayFor(attempt, policy))
		}
		return last
	}

	if err := backoff.Retry(operation, b); err != nil {
		if last != nil {
			return last
		}
		return err
	}
	return nil
}
