package util

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times, doubling the delay between
// attempts starting from baseDelay. It returns nil on the first success or
// the last error once attempts are exhausted. Context cancellation is
// honored between attempts. onRetry, when non-nil, is invoked before each
// re-attempt with the attempt number (1-based) and the error that caused it.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error, onRetry func(attempt int, err error)) error {
	var err error
	delay := baseDelay

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
