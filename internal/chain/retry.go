package chain

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// WithRetry runs fn, retrying transient errors with exponential backoff.
// Non-retryable errors are returned on first occurrence.
func WithRetry(ctx context.Context, clock clockwork.Clock, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || !IsRetryable(err) {
			return err
		}

		timer := clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}

		delay *= 2
	}
}
