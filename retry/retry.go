// Package retry wraps asynchronous load operations with a maximum wait and
// a bounded retry schedule (fixed delay × exponential backoff factor).
package retry

import (
	"context"
	"math"
	"time"

	"github.com/shipfed/navigator/internal/core"
)

// Op is the operation being retried. It must honor ctx cancellation.
type Op[T any] func(ctx context.Context) (T, error)

// Do runs op up to policy.Attempts times. Attempt 1 runs immediately;
// attempt n waits BaseDelay × Backoff^(n-2) first. Only transport-layer
// failures are retried; anything else propagates on first occurrence, as
// does the last failure once attempts are exhausted.
func Do[T any](ctx context.Context, policy core.RetryPolicy, op Op[T]) (T, error) {
	var zero T

	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	backoff := policy.Backoff
	if backoff <= 0 {
		backoff = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(float64(policy.BaseDelay) * math.Pow(backoff, float64(attempt-2)))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !core.Retryable(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

// WithTimeout races op against a deadline. On expiry the operation's
// eventual result is discarded (never delivered to the caller or written
// anywhere) and a LoadTimeoutError carrying the target URL and the
// duration is returned. d <= 0 disables the deadline.
func WithTimeout[T any](ctx context.Context, d time.Duration, url string, op Op[T]) (T, error) {
	var zero T
	if d <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	// Buffered so a late resolution is dropped, not leaked into a blocked
	// goroutine.
	done := make(chan outcome, 1)
	go func() {
		result, err := op(opCtx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err != nil && opCtx.Err() == context.DeadlineExceeded {
			return zero, &core.LoadTimeoutError{URL: url, Duration: d}
		}
		return out.result, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &core.LoadTimeoutError{URL: url, Duration: d}
	}
}
