package apperrors

import (
	"context"
	"errors"
	"time"
)

// DefaultRetries is the number of attempts WithErrorRecovery makes when the
// caller passes a non-positive retry count.
const DefaultRetries = 3

// DefaultBaseDelay is the first backoff interval; each subsequent interval
// doubles it.
const DefaultBaseDelay = 1 * time.Second

// WithErrorRecovery runs op up to retries times with exponential backoff.
// Only server-class failures are retried: an error whose status is below 500
// is returned immediately, since re-sending a rejected request cannot
// succeed. The delay before attempt n (zero-based) is baseDelay * 2^(n-1).
func WithErrorRecovery(ctx context.Context, op func() error, retries int, baseDelay time.Duration) error {
	if retries <= 0 {
		retries = DefaultRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}
	}

	return lastErr
}

// retryable reports whether the error is worth another attempt: typed errors
// with a client-class status are not, everything else is.
func retryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode() >= 500
	}
	return true
}
