// Package iox provides I/O helpers for resource cleanup and retrying
// transient transport failures.
package iox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// Backoff returns the delay before retry i (i >= 1): base, 2*base, 4*base...
func Backoff(base time.Duration, i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * base
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retriable for Retry.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryError reports why Retry gave up.
type RetryError struct {
	// Attempts is the number of calls made to fn.
	Attempts int
	// Canceled is set when ctx ended the loop.
	Canceled bool
	// Permanent is set when fn returned a Permanent error.
	Permanent bool
	Err       error
}

func (e *RetryError) Error() string {
	switch {
	case e.Canceled:
		return fmt.Sprintf("context canceled after %d attempts: %v", e.Attempts, e.Err)
	case e.Permanent:
		return fmt.Sprintf("non-retriable error: %v", e.Err)
	case e.Attempts <= 1:
		return e.Err.Error()
	default:
		return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
	}
}

func (e *RetryError) Unwrap() error { return e.Err }

// Retry calls fn once plus up to retries more times, sleeping
// Backoff(base, i) before retry i. It stops early on success, on a
// Permanent error, or when ctx is done. A non-nil result is *RetryError.
func Retry(ctx context.Context, retries int, base time.Duration, fn func(context.Context) error) error {
	attempts := 1 + retries
	var lastErr error
	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return &RetryError{Attempts: i, Canceled: true, Err: err}
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return &RetryError{Attempts: i, Canceled: true, Err: ctx.Err()}
			case <-time.After(Backoff(base, i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var p *permanentError
		if errors.As(lastErr, &p) {
			return &RetryError{Attempts: i + 1, Permanent: true, Err: p.err}
		}
	}
	return &RetryError{Attempts: attempts, Err: lastErr}
}
