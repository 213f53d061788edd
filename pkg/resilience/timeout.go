package resilience

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a context that expires after the given
// timeout. A non-positive timeout runs fn directly on the caller's
// context.
//
// On expiry the fn goroutine is abandoned, not interrupted: fn keeps
// running until it notices the cancelled context, so it must not hold
// resources the caller expects back. The returned error wraps
// context.DeadlineExceeded on expiry, or the parent's error when the
// caller's own context was cancelled first.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
	}

	// The timer and fn can fire together; prefer fn's real result when
	// it is already buffered.
	select {
	case err := <-done:
		return err
	default:
	}

	if ctx.Err() != nil {
		return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
	}
	return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
}
