package await

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func TestUntil_SucceedsOnceConditionHolds(t *testing.T) {
	start := time.Now()
	readyAt := start.Add(150 * time.Millisecond)

	err := Until(context.Background(), func(context.Context) (bool, error) {
		return time.Now().After(readyAt), nil
	}, WithInterval(10*time.Millisecond), WithTimeout(2*time.Second))

	require.NoError(t, err)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestUntil_ImmediateSuccessChecksOnce(t *testing.T) {
	var calls atomic.Int32
	err := Until(context.Background(), func(context.Context) (bool, error) {
		calls.Add(1)
		return true, nil
	}, WithInterval(time.Hour), WithTimeout(time.Second))

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_TimesOutAfterTimeout(t *testing.T) {
	start := time.Now()
	err := Until(context.Background(), func(context.Context) (bool, error) {
		return false, nil
	}, WithInterval(10*time.Millisecond), WithTimeout(200*time.Millisecond), Described("counter reaches 3"))

	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, 200*time.Millisecond, timeoutErr.Timeout)
	assert.Greater(t, timeoutErr.Attempts, 1)
	assert.ErrorIs(t, err, errNotSatisfied)
	assert.Contains(t, err.Error(), "counter reaches 3")
}

func TestUntil_PermanentErrorStopsPolling(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	err := Until(context.Background(), func(context.Context) (bool, error) {
		calls.Add(1)
		return false, boom
	}, WithInterval(10*time.Millisecond), WithTimeout(time.Second))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUntil_IgnoredErrorIsRetried(t *testing.T) {
	var calls atomic.Int32

	err := Until(context.Background(), func(context.Context) (bool, error) {
		if calls.Add(1) < 3 {
			return false, errTransient
		}
		return true, nil
	}, WithInterval(5*time.Millisecond), WithTimeout(time.Second), IgnoringIs(errTransient))

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntil_IgnoredErrorSurfacesOnTimeout(t *testing.T) {
	err := Until(context.Background(), func(context.Context) (bool, error) {
		return false, errTransient
	}, WithInterval(5*time.Millisecond), WithTimeout(50*time.Millisecond), IgnoringIs(errTransient))

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.ErrorIs(t, err, errTransient)
}

func TestUntil_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := Until(ctx, func(context.Context) (bool, error) {
		return false, nil
	}, WithInterval(5*time.Millisecond), WithTimeout(5*time.Second))

	require.ErrorIs(t, err, context.Canceled)
	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestUntilAsserted_SurfacesLastAssertionFailure(t *testing.T) {
	var value atomic.Int64

	err := UntilAsserted(context.Background(), func(c *C) {
		value.Add(1)
		assert.Equal(c, int64(-1), value.Load(), "value mismatch")
	}, WithInterval(5*time.Millisecond), WithTimeout(60*time.Millisecond))

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Contains(t, timeoutErr.Last.Error(), "value mismatch")
}

func TestUntilAsserted_RequireAbortsAttemptOnly(t *testing.T) {
	var calls atomic.Int32

	err := UntilAsserted(context.Background(), func(c *C) {
		n := calls.Add(1)
		require.GreaterOrEqual(c, n, int32(3))
	}, WithInterval(5*time.Millisecond), WithTimeout(time.Second))

	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestUntilAsserted_CheckDistinguishesTransientErrors(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	err := UntilAsserted(context.Background(), func(c *C) {
		switch calls.Add(1) {
		case 1:
			c.Check(errTransient)
		case 2:
			c.Check(boom)
		default:
			t.Error("polling should have stopped")
		}
	}, WithInterval(5*time.Millisecond), WithTimeout(time.Second), IgnoringIs(errTransient))

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUntilAsserted_ForeignPanicPropagates(t *testing.T) {
	assert.Panics(t, func() {
		_ = UntilAsserted(context.Background(), func(c *C) {
			panic("unexpected")
		}, WithTimeout(time.Second))
	})
}

func TestUntilAsserted_AttemptContextCancelledOnTimeout(t *testing.T) {
	err := UntilAsserted(context.Background(), func(c *C) {
		<-c.Context().Done()
		c.Check(c.Context().Err())
	}, WithInterval(5*time.Millisecond), WithTimeout(50*time.Millisecond))

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
}
