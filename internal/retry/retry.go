// Package retry runs an operation a bounded number of times, retrying only
// errors a caller-supplied predicate classifies as transient.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy describes one bounded retry loop
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one
	MaxAttempts int

	// Delay is the fixed pause between attempts
	Delay time.Duration

	// IsTransient decides whether an error is worth another attempt.
	// A nil predicate retries nothing.
	IsTransient func(error) bool

	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each pause with the failed attempt number (1-based)
	OnRetry func(attempt int, err error)
}

// ErrNoAttempts is returned when a policy allows zero attempts
var ErrNoAttempts = errors.New("retry policy allows no attempts")

// Do calls fn until it succeeds, fails with a non-transient error, or the
// attempts run out. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.MaxAttempts <= 0 {
		return zero, ErrNoAttempts
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		if p.IsTransient == nil || !p.IsTransient(err) || attempt == p.MaxAttempts {
			return zero, err
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, p.Delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep skips the pause; tests use it to run retry loops instantly
func NoSleep(context.Context, time.Duration) error {
	return nil
}
