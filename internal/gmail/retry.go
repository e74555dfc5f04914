package gmail

import (
	"context"
	"time"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
)

// withRetry runs fn up to retryAttempts times, doubling the delay
// between attempts. Only transient errors are retried; permanent
// client errors surface immediately.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryBaseDelay

	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		if attempt == retryAttempts {
			break
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
