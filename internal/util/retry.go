package util

import (
	"context"
	"errors"
	"time"
)

// Backoff is a capped exponential retry schedule.
type Backoff struct {
	Attempts int           // total calls, at least one
	Base     time.Duration // delay after the first failure
	Max      time.Duration // delay ceiling; zero means uncapped
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Retry returns the wrapped
// error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a Permanent error, or b.Attempts
// calls have failed, sleeping per b between calls. It returns the last
// error, or ctx.Err() if ctx ends while waiting.
func Retry(ctx context.Context, b Backoff, fn func() error) error {
	var err error
	delay := b.Base
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= b.Attempts {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
