package testing

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"conformance/internal/admin"
	"conformance/internal/config"
	"conformance/internal/ingress"
	"conformance/internal/orchestrator"
	"conformance/pkg/logging"
)

const testSubsystem = "Test"

// T is passed to every test method. It satisfies testify's require.TestingT,
// so require and assert can be used directly:
//
//	func counterAdd(t *testing.T) {
//		counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
//		resp, err := counter.Add(t.Context(), 1)
//		require.NoError(t, err)
//		assert.Equal(t, int64(1), resp.NewValue)
//	}
type T struct {
	ctx    context.Context
	class  string
	method string
	env    *classEnv
	log    *logging.Logger

	mu       sync.Mutex
	failed   bool
	skipped  bool
	failures []string
	logs     []string
}

// classEnv is what every method of a class shares.
type classEnv struct {
	deployment *orchestrator.RunningDeployment
	cfg        config.GlobalConfig
	ingress    *ingress.Client
	admin      *admin.Client
}

// failNow and skipNow unwind a test body.
type (
	failNow struct{}
	skipNow struct{}
)

func newT(ctx context.Context, class, method string, env *classEnv, log *logging.Logger) *T {
	return &T{ctx: ctx, class: class, method: method, env: env, log: log}
}

// Context returns the context of the test. It is cancelled when the class
// or suite times out.
func (t *T) Context() context.Context { return t.ctx }

// Name returns the test identity as class/method.
func (t *T) Name() string { return t.class + "/" + t.method }

// Ingress returns the ingress client of the class deployment.
func (t *T) Ingress() *ingress.Client { return t.env.ingress }

// Admin returns the admin client of the class deployment.
func (t *T) Admin() *admin.Client { return t.env.admin }

// IngressURL returns the host-reachable ingress base URL.
func (t *T) IngressURL() string { return t.env.deployment.IngressURL }

// AdminURL returns the host-reachable admin base URL.
func (t *T) AdminURL() string { return t.env.deployment.AdminURL }

// Deployment returns the running deployment of the class.
func (t *T) Deployment() *orchestrator.RunningDeployment { return t.env.deployment }

// Config returns the configuration of the suite.
func (t *T) Config() config.GlobalConfig { return t.env.cfg.Clone() }

// Helper is a no-op so that T satisfies testify's helper detection.
func (t *T) Helper() {}

// Errorf records a failure and lets the test continue.
func (t *T) Errorf(format string, args ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, args...))
	t.mu.Lock()
	t.failed = true
	t.failures = append(t.failures, msg)
	t.mu.Unlock()
	t.log.Error(t.ctx, testSubsystem, nil, "%s", msg)
}

// FailNow ends the test as failed. It must be called from the goroutine
// running the test.
func (t *T) FailNow() {
	t.mu.Lock()
	t.failed = true
	t.mu.Unlock()
	panic(failNow{})
}

// Fatalf is Errorf followed by FailNow.
func (t *T) Fatalf(format string, args ...interface{}) {
	t.Errorf(format, args...)
	t.FailNow()
}

// Skipf ends the test as skipped.
func (t *T) Skipf(format string, args ...interface{}) {
	t.Logf("skipped: "+format, args...)
	t.mu.Lock()
	t.skipped = true
	t.mu.Unlock()
	panic(skipNow{})
}

// Logf records a line in the test outcome and the suite log.
func (t *T) Logf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	t.mu.Lock()
	t.logs = append(t.logs, msg)
	t.mu.Unlock()
	t.log.Info(t.ctx, testSubsystem, "%s", msg)
}

// Failed reports whether the test has failed.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

// run executes fn, converting FailNow, Skipf and panics into a status.
func (t *T) run(fn func(t *T)) (status Status, failure string) {
	func() {
		defer func() {
			r := recover()
			switch r.(type) {
			case nil, failNow, skipNow:
			default:
				t.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		fn(t)
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.failed:
		return StatusFailed, strings.Join(t.failures, "\n")
	case t.skipped:
		return StatusSkipped, ""
	default:
		return StatusPassed, ""
	}
}

func (t *T) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.logs...)
}
