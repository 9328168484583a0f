package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict marks an error as a transient write conflict worth retrying.
var ErrConflict = errors.New("transaction conflict")

// Retry runs fn up to attempts times while it fails with a retryable error,
// backing off 25ms, 50ms, 100ms... between attempts.
func Retry(ctx context.Context, attempts int, retryable func(error) bool, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(25<<i) * time.Millisecond):
		}
	}
	return lastErr
}
