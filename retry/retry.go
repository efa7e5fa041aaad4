// Package retry provides an exponential-backoff retry policy for transient
// failures.
//
// The policy wraps operations explicitly at call sites (model calls, sandbox
// provisioning) rather than acting as cross-cutting behavior. Delays grow
// exponentially with randomized jitter and are capped at a maximum interval;
// errors the policy classifies as non-retryable propagate immediately.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults applied when a Policy field is zero
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// Policy describes how an operation is retried. A nil Retryable treats every
// error as transient.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	return p
}

func (p Policy) backOff(ctx context.Context) backoff.BackOffContext {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2
	eb.MaxElapsedTime = 0

	capped := backoff.WithMaxRetries(eb, uint64(p.MaxAttempts-1))
	return backoff.WithContext(capped, ctx)
}

func (p Policy) wrap(op func() error) func() error {
	return func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
}

// Do invokes op until it succeeds, the attempt budget is exhausted, or a
// non-retryable error occurs. The last error is returned once attempts run
// out.
func (p Policy) Do(ctx context.Context, op func() error) error {
	p = p.normalized()
	return backoff.Retry(p.wrap(op), p.backOff(ctx))
}

// DoValue is Do for operations that produce a value
func DoValue[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	p = p.normalized()

	var result T
	err := backoff.Retry(p.wrap(func() error {
		value, opErr := op()
		if opErr != nil {
			return opErr
		}
		result = value
		return nil
	}), p.backOff(ctx))

	return result, err
}
