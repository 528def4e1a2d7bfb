package testing

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"conformance/internal/await"
	"conformance/internal/config"
	"conformance/internal/deployment"
	"conformance/internal/fakeruntime"
	"conformance/internal/metrics"
	"conformance/internal/orchestrator"
	"conformance/internal/services"
	"conformance/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingReporter keeps every event it receives.
type recordingReporter struct {
	mu       sync.Mutex
	events   []string
	parallel bool
	tests    []TestOutcome
	classes  []ClassOutcome
	result   *SuiteResult
}

func (r *recordingReporter) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingReporter) ReportStart(cfg SuiteConfig)      { r.add("start " + cfg.Suite.Name) }
func (r *recordingReporter) ReportClassStart(class TestClass) { r.add("class " + class.Name) }
func (r *recordingReporter) ReportTestStart(class, method string) {
	r.add("test " + class + "/" + method)
}

func (r *recordingReporter) ReportTestResult(o TestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tests = append(r.tests, o)
	r.events = append(r.events, "result "+o.ID()+" "+string(o.Status))
}

func (r *recordingReporter) ReportClassResult(o ClassOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes = append(r.classes, o)
	r.events = append(r.events, "class result "+o.Name)
}

func (r *recordingReporter) ReportSuiteResult(res SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = &res
	r.events = append(r.events, "suite result")
}

func (r *recordingReporter) SetParallelMode(parallel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parallel = parallel
}

// failingDeployer fails the start of selected classes before anything is
// created.
type failingDeployer struct {
	Deployer
	fail map[string]error
}

func (d failingDeployer) Start(ctx context.Context, class string, cfg config.GlobalConfig, desc deployment.Descriptor) (*orchestrator.RunningDeployment, error) {
	if err := d.fail[class]; err != nil {
		return nil, err
	}
	return d.Deployer.Start(ctx, class, cfg, desc)
}

type harness struct {
	stack    *fakeruntime.Stack
	orch     *orchestrator.Orchestrator
	deployer Deployer
	reporter *recordingReporter
	log      bytes.Buffer
	cfg      config.GlobalConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	stack, err := fakeruntime.NewStack()
	require.NoError(t, err)
	t.Cleanup(stack.Close)

	orch := orchestrator.New(orchestrator.Config{Runtime: stack.Engine, RunID: "cf-runner", DisableExitCleanup: true})
	return &harness{
		stack:    stack,
		orch:     orch,
		deployer: orch,
		reporter: &recordingReporter{},
		cfg:      stack.Config(),
	}
}

func (h *harness) run(t *testing.T, registry *Registry, sc SuiteConfig) SuiteResult {
	t.Helper()
	if sc.Suite.Name == "" {
		sc.Suite.Name = "default"
	}
	if sc.Config.RuntimeImage == "" {
		sc.Config = h.cfg
	}
	runner := NewRunner(registry, h.deployer, h.reporter, NewSilentLogger(false, false),
		WithLogSource(h.stack.Engine),
		WithSuiteLog(logging.NewLogger(logging.LevelDebug, &syncWriter{w: &h.log})))
	result, err := runner.Run(context.Background(), sc)
	require.NoError(t, err)
	return result
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func counterClass(name string, methods ...TestCase) TestClass {
	return TestClass{
		Name: name,
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter))
		},
		Methods: methods,
	}
}

func statuses(result SuiteResult) map[string]Status {
	out := map[string]Status{}
	for _, o := range result.Tests() {
		out[o.ID()] = o.Status
	}
	return out
}

func TestRunner_OutcomesOfOneClass(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("Basics",
		TestCase{Name: "counter", Fn: func(t *T) {
			counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
			resp, err := counter.Add(t.Context(), 1)
			require.NoError(t, err)
			assert.Equal(t, int64(1), resp.NewValue)
			t.Logf("counter at %d", resp.NewValue)
		}},
		TestCase{Name: "fails", Fn: func(t *T) {
			assert.Equal(t, 1, 2)
			t.Logf("still running")
		}},
		TestCase{Name: "failNow", Fn: func(t *T) {
			require.True(t, false, "stop here")
			t.Logf("unreachable")
		}},
		TestCase{Name: "panics", Fn: func(t *T) { panic("boom") }},
		TestCase{Name: "skips", Fn: func(t *T) { t.Skipf("not %s", "today") }},
	))

	result := h.run(t, registry, SuiteConfig{})

	assert.Equal(t, map[string]Status{
		"Basics/counter": StatusPassed,
		"Basics/fails":   StatusFailed,
		"Basics/failNow": StatusFailed,
		"Basics/panics":  StatusFailed,
		"Basics/skips":   StatusSkipped,
	}, statuses(result))
	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, 1, result.Skipped)
	assert.False(t, result.Succeeded())

	tests := result.Classes[0].Tests
	assert.Equal(t, []string{"counter at 1"}, tests[0].Logs)
	assert.Equal(t, []string{"still running"}, tests[1].Logs)
	assert.Contains(t, tests[2].Failure, "stop here")
	assert.Empty(t, tests[2].Logs)
	assert.True(t, strings.HasPrefix(tests[3].Failure, "panic: boom"))
	assert.Equal(t, []string{"skipped: not today"}, tests[4].Logs)

	containers, networks := h.stack.Engine.Live()
	assert.Zero(t, containers, "deployment is removed after the class")
	assert.Zero(t, networks)

	assert.Contains(t, h.log.String(), "test=Basics/counter")
	assert.Equal(t, "start default", h.reporter.events[0])
	assert.Equal(t, "suite result", h.reporter.events[len(h.reporter.events)-1])
}

func TestRunner_SetupFailureAbortsClass(t *testing.T) {
	h := newHarness(t)
	h.deployer = failingDeployer{Deployer: h.orch, fail: map[string]error{"Broken": errors.New("no such image")}}

	var entered sync.Map
	body := func(t *T) { entered.Store(t.Name(), true) }

	registry := NewRegistry()
	registry.MustAddClass(counterClass("Broken", TestCase{Name: "a", Fn: body}, TestCase{Name: "b", Fn: body}))
	registry.MustAddClass(TestClass{
		Name: "InvalidDescriptor",
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.DefaultSpec(services.Counter))
			b.WithServiceSpec(deployment.DefaultSpec(services.Proxy))
		},
		Methods: []TestCase{{Name: "a", Fn: body}},
	})
	registry.MustAddClass(counterClass("Healthy", TestCase{Name: "a", Fn: body}))

	result := h.run(t, registry, SuiteConfig{})

	assert.Equal(t, map[string]Status{
		"Broken/a":            StatusAborted,
		"Broken/b":            StatusAborted,
		"InvalidDescriptor/a": StatusAborted,
		"Healthy/a":           StatusPassed,
	}, statuses(result))
	assert.Equal(t, 3, result.Aborted)

	_, ok := entered.Load("Broken/a")
	assert.False(t, ok, "methods of an aborted class are never entered")
	_, ok = entered.Load("Healthy/a")
	assert.True(t, ok)

	broken := result.Classes[0]
	assert.True(t, broken.Aborted)
	assert.Contains(t, broken.Error, "no such image")
	assert.Contains(t, broken.Tests[0].Failure, "class setup failed")
	assert.True(t, result.Classes[1].Aborted)
	assert.Contains(t, result.Classes[1].Error, "invalid deployment")
}

func TestRunner_PartialStartIsCleanedUpAndLogged(t *testing.T) {
	h := newHarness(t)
	h.stack.Engine.FailStart("service-default", errors.New("exec format error"))

	registry := NewRegistry()
	registry.MustAddClass(counterClass("Partial", TestCase{Name: "a", Fn: noop}))

	var stderr bytes.Buffer
	dir := t.TempDir()
	result := h.run(t, registry, SuiteConfig{ReportDir: dir, Stderr: &stderr})

	assert.Equal(t, StatusAborted, result.Tests()[0].Status)
	containers, networks := h.stack.Engine.Live()
	assert.Zero(t, containers)
	assert.Zero(t, networks)

	class := result.Classes[0]
	require.Len(t, class.LogFiles, 1)
	assert.Equal(t, filepath.Join(dir, "Partial", "runtime.log"), class.LogFiles[0])
	assert.Contains(t, stderr.String(), "===== Partial: runtime.log =====")
	assert.Contains(t, stderr.String(), "logs of runtime")
}

func TestRunner_FailFast(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("First", TestCase{Name: "fails", Fn: func(t *T) { t.Errorf("broken") }}))
	registry.MustAddClass(counterClass("Second", TestCase{Name: "a", Fn: noop}, TestCase{Name: "b", Fn: noop}))

	result := h.run(t, registry, SuiteConfig{FailFast: true, Parallel: 1})

	assert.Equal(t, map[string]Status{
		"First/fails": StatusFailed,
		"Second/a":    StatusSkipped,
		"Second/b":    StatusSkipped,
	}, statuses(result))
	assert.Equal(t, ErrFailFast.Error(), result.Classes[1].Tests[0].Failure)
	assert.False(t, result.Classes[1].Aborted)

	starts := 0
	for _, e := range h.stack.Engine.Events() {
		if e == "start "+fakeruntime.RuntimeAlias {
			starts++
		}
	}
	assert.Equal(t, 1, starts, "skipped classes are never deployed")
}

func TestRunner_SuiteTimeout(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("Blocking", TestCase{Name: "waits", Fn: func(t *T) {
		<-t.Context().Done()
		t.Errorf("cancelled: %v", context.Cause(t.Context()))
	}}))
	registry.MustAddClass(counterClass("Later", TestCase{Name: "a", Fn: noop}))

	result := h.run(t, registry, SuiteConfig{Timeout: time.Second, Parallel: 1})

	assert.True(t, result.TimedOut)
	assert.Equal(t, map[string]Status{
		"Blocking/waits": StatusAborted,
		"Later/a":        StatusAborted,
	}, statuses(result))
	assert.Contains(t, result.Classes[1].Tests[0].Failure, ErrSuiteTimeout.Error())

	containers, networks := h.stack.Engine.Live()
	assert.Zero(t, containers, "teardown runs after the suite timed out")
	assert.Zero(t, networks)
}

func TestRunner_ParallelClassesAndMethods(t *testing.T) {
	h := newHarness(t)

	var count int32
	var mu sync.Mutex
	rendezvous := func(t *T) {
		mu.Lock()
		count++
		mu.Unlock()
		err := await.Until(t.Context(), func(context.Context) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			return count == 2, nil
		}, await.WithTimeout(5*time.Second), await.WithInterval(10*time.Millisecond))
		require.NoError(t, err, "parallel methods run concurrently")
	}
	isolated := func(t *T) {
		counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
		resp, err := counter.Add(t.Context(), 1)
		require.NoError(t, err)
		assert.Equal(t, int64(0), resp.OldValue)
	}

	registry := NewRegistry()
	registry.MustAddClass(counterClass("Left",
		TestCase{Name: "first", Fn: isolated},
		TestCase{Name: "p1", Parallel: true, Fn: rendezvous},
		TestCase{Name: "p2", Parallel: true, Fn: rendezvous},
	))
	registry.MustAddClass(counterClass("Right", TestCase{Name: "first", Fn: isolated}))

	result := h.run(t, registry, SuiteConfig{Parallel: 4})

	assert.True(t, result.Succeeded(), "%+v", statuses(result))
	assert.Equal(t, 4, result.Passed)
	assert.True(t, h.reporter.parallel)
	assert.Equal(t, "Left", result.Classes[0].Name, "class outcomes keep registration order")
	assert.Equal(t, "first", result.Classes[0].Tests[0].Method)
}

func TestRunner_SuiteEnvAppliesToCopy(t *testing.T) {
	h := newHarness(t)
	base := h.cfg.WithRuntimeEnv(map[string]string{"FROM_BASE": "1"})

	var seen map[string]string
	registry := NewRegistry()
	registry.MustAddClass(counterClass("Env", TestCase{Name: "runtimeEnv", Fn: func(t *T) {
		runtime, ok := h.stack.Engine.ByAlias(fakeruntime.RuntimeAlias)
		require.True(t, ok)
		seen = runtime.Env
		assert.Equal(t, "1", t.Config().EffectiveRuntimeEnv()["RESTATE_BOOTSTRAP_NUM_PARTITIONS"])
	}}))

	result := h.run(t, registry, SuiteConfig{
		Suite:  Suite{Name: "singlePartition", Env: map[string]string{"RESTATE_BOOTSTRAP_NUM_PARTITIONS": "1"}},
		Config: base,
	})

	require.True(t, result.Succeeded(), "%+v", result.Tests())
	assert.Equal(t, "1", seen["RESTATE_BOOTSTRAP_NUM_PARTITIONS"])
	assert.Equal(t, "1", seen["FROM_BASE"])
	_, leaked := base.EffectiveRuntimeEnv()["RESTATE_BOOTSTRAP_NUM_PARTITIONS"]
	assert.False(t, leaked, "the base configuration is never mutated")
}

func TestRunner_RetainedDeploymentSurvives(t *testing.T) {
	h := newHarness(t)
	cfg := h.cfg.WithOverrides(func(c *config.GlobalConfig) {
		c.RetainAfterEnd = true
		c.ClassTimeout = 50 * time.Millisecond
	})

	registry := NewRegistry()
	registry.MustAddClass(counterClass("Kept", TestCase{Name: "outlivesClassTimeout", Fn: func(t *T) {
		time.Sleep(150 * time.Millisecond)
		assert.NoError(t, t.Context().Err())
	}}))

	result := h.run(t, registry, SuiteConfig{Config: cfg})

	assert.True(t, result.Succeeded(), "%+v", result.Tests())
	assert.True(t, result.Classes[0].Retained)
	containers, networks := h.stack.Engine.Live()
	assert.Equal(t, 2, containers)
	assert.Equal(t, 1, networks)

	report, err := CleanupStaleResources(context.Background(), h.stack.Engine, CleanupOptions{}, NewSilentLogger(false, false))
	require.NoError(t, err)
	assert.Equal(t, []string{"cf-runner"}, report.Runs)
	containers, networks = h.stack.Engine.Live()
	assert.Zero(t, containers)
	assert.Zero(t, networks)
}

func TestRunner_ClassTimeout(t *testing.T) {
	h := newHarness(t)
	cfg := h.cfg.WithOverrides(func(c *config.GlobalConfig) { c.ClassTimeout = 2 * time.Second })

	registry := NewRegistry()
	registry.MustAddClass(counterClass("Slow", TestCase{Name: "waits", Fn: func(t *T) {
		select {
		case <-t.Context().Done():
			t.Errorf("%v", context.Cause(t.Context()))
		case <-time.After(10 * time.Second):
		}
	}}))

	result := h.run(t, registry, SuiteConfig{Config: cfg})

	outcome := result.Tests()[0]
	assert.Equal(t, StatusFailed, outcome.Status, "a class timeout fails the running test")
	assert.Contains(t, outcome.Failure, "exceeded its timeout")
	assert.False(t, result.TimedOut)
}

func TestRunner_InvalidTagExpression(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("A", TestCase{Name: "a", Fn: noop}))

	runner := NewRunner(registry, h.deployer, h.reporter, NewSilentLogger(false, false))
	_, err := runner.Run(context.Background(), SuiteConfig{Suite: Suite{Name: "x"}, Tags: "a &", Config: h.cfg})
	assert.Error(t, err)
	assert.Empty(t, h.reporter.events, "nothing is reported for a suite that cannot run")
}

func TestRunner_NoMatchingTests(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("A", TestCase{Name: "a", Fn: noop}))

	result := h.run(t, registry, SuiteConfig{Tags: "nothing-has-this"})

	assert.Zero(t, result.Total)
	assert.True(t, result.Succeeded())
	assert.Empty(t, h.stack.Engine.Events())
}

func TestRunner_WritesReportFiles(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("Files", TestCase{Name: "a", Fn: noop}))

	base := t.TempDir()
	out, err := OpenSuiteOutput(OutputOptions{BaseDir: base}, "default")
	require.NoError(t, err)

	runner := out.NewRunner(registry, h.deployer, h.stack.Engine)
	result, err := runner.Run(context.Background(), out.Configure(SuiteConfig{Suite: Suite{Name: "default"}, Config: h.cfg}))
	require.NoError(t, err)
	require.NoError(t, out.Close())
	assert.True(t, result.Succeeded())

	for _, name := range []string{StdoutFileName, StderrFileName, LogFileName, JUnitFileName, JSONFileName, metrics.FileName} {
		assert.FileExists(t, filepath.Join(base, "default", name))
	}
	assert.FileExists(t, filepath.Join(base, "default", "Files", "runtime.log"))

	stdout, err := os.ReadFile(filepath.Join(base, "default", StdoutFileName))
	require.NoError(t, err)
	assert.Contains(t, string(stdout), "Files/a")
	assert.Contains(t, string(stdout), "All tests passed!")

	logText, err := os.ReadFile(filepath.Join(base, "default", LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(logText), "Starting class Files")
}

func TestRunner_SkippedTestsAreNeutral(t *testing.T) {
	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(counterClass("Optional",
		TestCase{Name: "runs", Fn: noop},
		TestCase{Name: "unsupported", Fn: func(t *T) { t.Skipf("feature disabled") }},
	))

	result := h.run(t, registry, SuiteConfig{})

	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 1, result.Skipped)
	assert.True(t, result.Succeeded())
}

// logLine returns the first line of log that contains every fragment.
func logLine(log string, fragments ...string) (string, bool) {
	for _, line := range strings.Split(log, "\n") {
		matched := true
		for _, f := range fragments {
			if !strings.Contains(line, f) {
				matched = false
				break
			}
		}
		if matched {
			return line, true
		}
	}
	return "", false
}

func TestRunner_ClientLogsCarryTestIdentity(t *testing.T) {
	var process bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &syncWriter{w: &process})
	t.Cleanup(func() { logging.InitForCLI(logging.LevelInfo, os.Stderr) })

	h := newHarness(t)
	registry := NewRegistry()
	registry.MustAddClass(TestClass{
		Name: "Late",
		Configure: func(b *deployment.Builder) {
			b.WithServiceSpec(deployment.NamedSpec("late", services.Counter).SkipRegistration())
		},
		Methods: []TestCase{{Name: "register", Fn: func(t *T) {
			require.NoError(t, t.Deployment().Register(t.Context(), "late"))
			counter := services.NewCounterClient(t.Ingress(), services.RandomKey())
			_, err := counter.Add(t.Context(), 1)
			require.NoError(t, err)
		}}},
	})

	result := h.run(t, registry, SuiteConfig{})
	require.True(t, result.Succeeded(), "%+v", result.Tests())

	_, ok := logLine(h.log.String(), "subsystem=Ingress", "test=Late/register")
	assert.True(t, ok, "ingress requests are logged to the suite log with the test identity:\n%s", h.log.String())
	_, ok = logLine(h.log.String(), "Registered late", "subsystem=Orchestrator", "test=Late/register")
	assert.True(t, ok, "mid-test registration is logged with the test identity:\n%s", h.log.String())
	_, ok = logLine(h.log.String(), "Starting deployment for Late", "subsystem=Orchestrator")
	assert.True(t, ok, "deployment start goes to the suite log")

	_, leaked := logLine(process.String(), "subsystem=Ingress")
	assert.False(t, leaked, "ingress requests stay out of the process log:\n%s", process.String())
}
