package util

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryInitialInterval is the wait before the second attempt. Later waits
// grow exponentially up to RetryMaxInterval.
var (
	RetryInitialInterval = 250 * time.Millisecond
	RetryMaxInterval     = 5 * time.Second
)

// Permanent marks err as not worth retrying. RetryWithContext returns it
// unwrapped after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func newBackOff(ctx context.Context, maxTries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxTries-1)), ctx)
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// RetryErrWithContext calls fn up to maxTries times with exponential backoff
// until it returns nil. If maxTries <= 0, it defaults to 1.
// Returns ctx.Err() if the context is canceled, otherwise returns the last error.
func RetryErrWithContext(ctx context.Context, maxTries int, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times with exponential backoff until
// it returns a nil error, or until ctx is done. If maxTries <= 0, it defaults to 1.
// Errors wrapped with Permanent and context errors stop the loop immediately.
func RetryWithContext[T any](ctx context.Context, maxTries int, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var result T
	op := func() error {
		r, err := fn(ctx)
		if err != nil {
			if isContextErr(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	if err := backoff.Retry(op, newBackOff(ctx, maxTries)); err != nil {
		return zero, err
	}
	return result, nil
}
