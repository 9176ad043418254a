package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConnectivity marks errors caused by an unreachable database.
var ErrConnectivity = errors.New("database unreachable")

// ConnectivityError wraps a driver error that means the database could not be
// reached, as opposed to a query the server rejected.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrConnectivity, e.Err)
}

func (e *ConnectivityError) Unwrap() []error { return []error{ErrConnectivity, e.Err} }

// IsConnectivity reports whether err is, or wraps, a ConnectivityError.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// DefaultRetryDelay is the fixed pause between reconciler attempts.
const DefaultRetryDelay = 5 * time.Second

// Retry is a fixed-delay retry policy. Attempts is the total number of tries;
// zero means retry until the context ends.
type Retry struct {
	Attempts  int
	Delay     time.Duration
	Retryable func(error) bool
	OnRetry   func(attempt int, err error)
}

// Do runs fn until it succeeds, returns a non-retryable error, exhausts the
// attempts, or ctx is done.
func (r Retry) Do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(err) {
			return err
		}
		if r.Attempts > 0 && attempt >= r.Attempts {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}

		timer := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
}
