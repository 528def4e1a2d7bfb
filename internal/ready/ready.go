package ready

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultInitialInterval is the starting poll interval.
	DefaultInitialInterval = 10 * time.Millisecond

	// DefaultMaxInterval is the maximum poll interval after backoff.
	DefaultMaxInterval = 1 * time.Second

	// DefaultTimeout is the default maximum wait for readiness.
	DefaultTimeout = 30 * time.Second
)

// Checker performs a single readiness probe against an endpoint.
type Checker interface {
	Check(ctx context.Context, host string, port int) error
}

// Target identifies the container and published port being probed.
type Target struct {
	Container string
	Host      string
	Port      int
}

func (t Target) String() string {
	return fmt.Sprintf("%s (%s:%d)", t.Container, t.Host, t.Port)
}

// TimeoutError is returned by Poll when a container did not become ready in
// time. Last holds the error of the final probe.
type TimeoutError struct {
	Container string
	Timeout   time.Duration
	Last      error
}

func (e *TimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("container %s not ready after %s", e.Container, e.Timeout)
	}
	return fmt.Sprintf("container %s not ready after %s (last error: %v)", e.Container, e.Timeout, e.Last)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// Options tune Poll.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
	// OnFailure is called after each failed probe.
	OnFailure func(err error)
}

// Poll repeatedly calls checker.Check with exponential backoff until
// the check succeeds, the timeout elapses or the context is cancelled.
//
// Cancellation of ctx by the caller is returned as is; running out of time
// yields a *TimeoutError.
func Poll(ctx context.Context, target Target, checker Checker, opts Options) error {
	timeout := DefaultTimeout
	interval := DefaultInitialInterval
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	if opts.Interval > 0 {
		interval = opts.Interval
	}
	maxInterval := DefaultMaxInterval
	if interval > maxInterval {
		maxInterval = interval
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		err := checker.Check(pollCtx, target.Host, target.Port)
		if err == nil {
			return nil
		}
		lastErr = err
		if opts.OnFailure != nil {
			opts.OnFailure(err)
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("readiness check of %s interrupted: %w", target.Container, ctx.Err())
			}
			if errors.Is(lastErr, context.DeadlineExceeded) {
				lastErr = fmt.Errorf("probe of %s timed out", target)
			}
			return &TimeoutError{Container: target.Container, Timeout: timeout, Last: lastErr}
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}
