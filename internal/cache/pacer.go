package cache

import (
	"context"
	"errors"
	"time"
)

// Pacer delays successive page requests to respect vendor rate limits.
type Pacer interface {
	// Wait blocks until the next request may be issued or ctx is done.
	Wait(ctx context.Context) error
}

// PacerFunc adapts a function to the Pacer interface.
type PacerFunc func(ctx context.Context) error

// Wait calls f(ctx).
func (f PacerFunc) Wait(ctx context.Context) error { return f(ctx) }

// NoDelay returns a pacer that never waits.
func NoDelay() Pacer {
	return PacerFunc(func(ctx context.Context) error { return ctx.Err() })
}

// FixedDelay returns a pacer that waits d before every request it gates.
func FixedDelay(d time.Duration) Pacer {
	return PacerFunc(func(ctx context.Context) error { return sleep(ctx, d) })
}

// RetryPolicy retries page requests that fail with a retryable error.
// The zero value never retries.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per page, including the
	// first one. Values below 2 disable retries.
	MaxAttempts int

	// Backoff returns the delay before attempt n (n starts at 1 for the
	// first retry). A nil Backoff retries immediately.
	Backoff func(n int) time.Duration
}

// ExponentialBackoff doubles base on each retry, capped at ceiling.
func ExponentialBackoff(base, ceiling time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		d := base
		for i := 1; i < n && d < ceiling; i++ {
			d *= 2
		}
		if d > ceiling {
			return ceiling
		}
		return d
	}
}

// temporary is implemented by errors that may succeed on retry.
type temporary interface {
	Temporary() bool
}

// Retryable reports whether err, or an error it wraps, is temporary.
func Retryable(err error) bool {
	var t temporary
	return errors.As(err, &t) && t.Temporary()
}

func (p RetryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !Retryable(err) {
			return err
		}
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
