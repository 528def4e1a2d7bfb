package await

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultTimeout  = 10 * time.Second
)

// errNotSatisfied is the last failure recorded when a predicate returned false.
var errNotSatisfied = errors.New("condition not satisfied")

// TimeoutError is returned when a condition did not hold before the timeout.
// It unwraps to the last failure observed.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
	Attempts    int
	Last        error
}

func (e *TimeoutError) Error() string {
	what := "condition"
	if e.Description != "" {
		what = e.Description
	}
	if e.Last == nil {
		return fmt.Sprintf("%s not met within %s after %d attempts", what, e.Timeout, e.Attempts)
	}
	return fmt.Sprintf("%s not met within %s after %d attempts, last failure: %v", what, e.Timeout, e.Attempts, e.Last)
}

func (e *TimeoutError) Unwrap() error {
	return e.Last
}

type options struct {
	interval    time.Duration
	timeout     time.Duration
	ignore      []func(error) bool
	description string
}

// Option tunes a single wait.
type Option func(*options)

// WithInterval sets the pause between two attempts.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithTimeout sets the overall time budget.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Ignoring treats errors matching kind as transient: they are recorded as the
// last failure and the check is retried.
func Ignoring(kind func(error) bool) Option {
	return func(o *options) { o.ignore = append(o.ignore, kind) }
}

// IgnoringIs treats errors wrapping target as transient.
func IgnoringIs(target error) Option {
	return Ignoring(func(err error) bool { return errors.Is(err, target) })
}

// Described names the awaited condition in timeout errors.
func Described(description string) Option {
	return func(o *options) { o.description = description }
}

func newOptions(opts []Option) options {
	o := options{interval: DefaultInterval, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.interval <= 0 {
		o.interval = DefaultInterval
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	return o
}

func (o options) ignorable(err error) bool {
	for _, kind := range o.ignore {
		if kind(err) {
			return true
		}
	}
	return false
}

// Until polls predicate until it returns true. The first check happens
// immediately. An error returned by predicate stops polling and is returned,
// unless it matches an Ignoring rule.
func Until(ctx context.Context, predicate func(ctx context.Context) (bool, error), opts ...Option) error {
	o := newOptions(opts)
	return poll(ctx, o, func(ctx context.Context) outcome {
		ok, err := predicate(ctx)
		switch {
		case err == nil && ok:
			return outcome{done: true}
		case err == nil:
			return outcome{retry: errNotSatisfied}
		case o.ignorable(err):
			return outcome{retry: err}
		default:
			return outcome{permanent: err}
		}
	})
}

// UntilAsserted runs block until it completes without recording a failure on
// the supplied C. Assertion failures are always retried; errors handed to
// C.Check are retried only when they match an Ignoring rule.
func UntilAsserted(ctx context.Context, block func(c *C), opts ...Option) error {
	o := newOptions(opts)
	return poll(ctx, o, func(ctx context.Context) outcome {
		c := &C{ctx: ctx, opts: o}
		c.run(block)
		switch {
		case c.permanent != nil:
			return outcome{permanent: c.permanent}
		case len(c.failures) > 0:
			return outcome{retry: errors.New(strings.Join(c.failures, "\n"))}
		default:
			return outcome{done: true}
		}
	})
}

// outcome of a single attempt: success, a failure to retry on, or a
// permanent error.
type outcome struct {
	done      bool
	retry     error
	permanent error
}

type attempt func(ctx context.Context) outcome

func poll(ctx context.Context, o options, check attempt) error {
	var (
		attempts  int
		last      error
		permanent error
	)
	err := wait.PollUntilContextTimeout(ctx, o.interval, o.timeout, true, func(ctx context.Context) (bool, error) {
		attempts++
		res := check(ctx)
		if res.permanent != nil {
			if ctx.Err() != nil {
				// The attempt was cut short by the timeout itself.
				last = res.permanent
				return false, nil
			}
			permanent = res.permanent
			return false, res.permanent
		}
		if !res.done {
			last = res.retry
		}
		return res.done, nil
	})
	if err == nil {
		return nil
	}
	if permanent != nil {
		return permanent
	}
	if ctx.Err() != nil {
		// The caller gave up, not the timeout.
		return fmt.Errorf("%w (last failure: %v)", ctx.Err(), last)
	}
	return &TimeoutError{Description: o.description, Timeout: o.timeout, Attempts: attempts, Last: last}
}
