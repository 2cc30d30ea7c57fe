// Package retry runs an operation a bounded number of times with a per-attempt delay.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retry loop. Delay receives the 1-based attempt that just failed.
type Policy struct {
	Attempts int
	Delay    func(attempt int) time.Duration
}

// Linear waits attempt × base between attempts.
func Linear(attempts int, base time.Duration) Policy {
	return Policy{
		Attempts: attempts,
		Delay:    func(attempt int) time.Duration { return time.Duration(attempt) * base },
	}
}

// ExhaustedError reports the final failure of a retry loop.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do calls fn until it succeeds, returns a Permanent error, the attempts run out, or ctx ends.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Delay != nil {
			wait = p.Delay(attempt)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &ExhaustedError{Attempts: attempt, Err: errors.Join(err, ctx.Err())}
		case <-timer.C:
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: err}
}
