package util

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// permanentError marks an error Retry must not retry.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Retry gives up immediately instead of burning the
// remaining attempts. Retry hands the original err back to its caller.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn up to maxAttempts times, doubling the delay between attempts
// with up to 25% jitter so parallel workers do not retry in lockstep. It stops
// early on success, on an error wrapped with Permanent, or when the context
// ends, and otherwise returns the last error.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if ctx.Err() != nil {
			return err
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(jitter(delay)):
			}
			delay *= 2
		}
	}

	return err
}

// jitter spreads delay upward by up to a quarter of its value.
func jitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(delay/4)+1))
}
