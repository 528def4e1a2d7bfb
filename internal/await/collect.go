package await

import (
	"context"
	"fmt"
)

// C collects the failures of one attempt of UntilAsserted. It satisfies
// testify's assert.TestingT and require.TestingT, so assertions can be made
// against it directly:
//
//	err := await.UntilAsserted(ctx, func(c *await.C) {
//		value, err := counter.Get(c.Context())
//		if !c.Check(err) {
//			return
//		}
//		assert.Equal(c, int64(1), value)
//	})
type C struct {
	ctx       context.Context
	opts      options
	failures  []string
	permanent error
}

// failNow aborts the current attempt.
type failNow struct{}

// Context returns the context of the current attempt. It is cancelled when
// the overall timeout elapses.
func (c *C) Context() context.Context {
	return c.ctx
}

// Errorf records an assertion failure.
func (c *C) Errorf(format string, args ...interface{}) {
	c.failures = append(c.failures, fmt.Sprintf(format, args...))
}

// FailNow ends the current attempt.
func (c *C) FailNow() {
	panic(failNow{})
}

// Helper is a no-op so that C satisfies testify's helper detection.
func (c *C) Helper() {}

// Check records err and reports whether it was nil. Errors matching an
// Ignoring rule are retried; any other error stops polling and is returned by
// UntilAsserted.
func (c *C) Check(err error) bool {
	if err == nil {
		return true
	}
	if c.opts.ignorable(err) {
		c.failures = append(c.failures, err.Error())
		return false
	}
	c.permanent = err
	return false
}

func (c *C) run(block func(c *C)) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(failNow); ok {
				if len(c.failures) == 0 && c.permanent == nil {
					c.failures = append(c.failures, "FailNow called")
				}
				return
			}
			panic(r)
		}
	}()
	block(c)
}
