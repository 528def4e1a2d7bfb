package testing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"conformance/internal/config"
	"conformance/internal/orchestrator"
	"conformance/pkg/logging"

	"golang.org/x/sync/errgroup"
)

const runnerSubsystem = "Runner"

// Runner executes suites: it resolves the classes of a suite, deploys each
// class, runs its methods and reports every outcome.
type Runner struct {
	registry   *Registry
	deployer   Deployer
	reporter   TestReporter
	logger     TestLogger
	log        *logging.Logger
	logs       orchestrator.LogSource
	httpClient *http.Client
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogSource saves container logs of every class through src.
func WithLogSource(src orchestrator.LogSource) RunnerOption {
	return func(r *Runner) { r.logs = src }
}

// WithSuiteLog sends structured log lines to l instead of the process default.
func WithSuiteLog(l *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithHTTPClient sets the HTTP client used by the ingress and admin clients
// handed to tests.
func WithHTTPClient(hc *http.Client) RunnerOption {
	return func(r *Runner) { r.httpClient = hc }
}

// NewRunner creates a new test runner
func NewRunner(registry *Registry, deployer Deployer, reporter TestReporter, logger TestLogger, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		deployer: deployer,
		reporter: reporter,
		logger:   logger,
		log:      logging.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one suite. The returned error is reserved for problems that
// prevent the suite from running at all, such as an invalid tag expression;
// test failures are reported through the result.
func (r *Runner) Run(ctx context.Context, sc SuiteConfig) (SuiteResult, error) {
	classes, err := r.registry.Resolve(sc.Suite, sc.Tags)
	if err != nil {
		return SuiteResult{}, err
	}
	cfg := sc.Config.WithRuntimeEnv(sc.Suite.Env)
	ctx = logging.WithLogger(ctx, r.log)

	result := SuiteResult{Suite: sc.Suite.Name, StartTime: time.Now()}
	r.reporter.ReportStart(sc)

	var suiteCtx context.Context
	var cancel context.CancelFunc
	if sc.Timeout > 0 {
		suiteCtx, cancel = context.WithTimeoutCause(ctx, sc.Timeout, ErrSuiteTimeout)
	} else {
		suiteCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	workers := min(max(sc.Parallel, 1), len(classes))
	r.reporter.SetParallelMode(workers > 1)

	outcomes := make([]ClassOutcome, len(classes))
	jobs := make(chan int, len(classes))
	for i := range classes {
		jobs <- i
	}
	close(jobs)

	var stop atomic.Bool
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				class := classes[i]
				var outcome ClassOutcome
				switch {
				case suiteCtx.Err() != nil:
					outcome = r.notRun(class, StatusAborted, cancellationReason(suiteCtx))
				case stop.Load():
					outcome = r.notRun(class, StatusSkipped, ErrFailFast.Error())
				default:
					r.logger.Debug("🔄 Worker %d executing class: %s\n", workerID, class.Name)
					outcome = r.runClass(suiteCtx, class, cfg, sc)
				}
				outcomes[i] = outcome

				if sc.FailFast && classFailed(outcome) && !stop.Swap(true) {
					r.logger.Debug("🛑 Fail-fast triggered by class: %s\n", class.Name)
				}
			}
		}(w)
	}
	wg.Wait()

	for _, o := range outcomes {
		for _, t := range o.Tests {
			result.count(t)
		}
	}
	result.Classes = outcomes
	result.TimedOut = errors.Is(context.Cause(suiteCtx), ErrSuiteTimeout)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	r.reporter.ReportSuiteResult(result)
	return result, nil
}

// runClass deploys class, runs its methods and tears the deployment down.
func (r *Runner) runClass(ctx context.Context, class TestClass, cfg config.GlobalConfig, sc SuiteConfig) ClassOutcome {
	outcome := ClassOutcome{Name: class.Name, StartTime: time.Now()}
	r.reporter.ReportClassStart(class)
	r.log.Info(ctx, runnerSubsystem, "Starting class %s (%d tests)", class.Name, len(class.Methods))

	lc := &classLifecycle{
		deployer:   r.deployer,
		logs:       r.logs,
		httpClient: r.httpClient,
		log:        r.log,
		cfg:        cfg,
		reportDir:  sc.ReportDir,
		stderr:     sc.Stderr,
	}
	prepErr := lc.prepare(class)

	// Retained deployments get no class timeout.
	var classCtx context.Context
	var cancel context.CancelFunc
	if prepErr == nil && !lc.retained() && cfg.ClassTimeout > 0 {
		classCtx, cancel = context.WithTimeoutCause(ctx, cfg.ClassTimeout,
			fmt.Errorf("class %s exceeded its timeout of %s", class.Name, cfg.ClassTimeout))
	} else {
		classCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	err := prepErr
	if err == nil {
		err = lc.beforeAll(classCtx, class)
	}
	if err != nil {
		outcome.Aborted = true
		outcome.Error = err.Error()
		r.logger.Error("💥 Class %s setup failed: %v\n", class.Name, err)
		r.log.Error(ctx, runnerSubsystem, err, "Class %s setup failed", class.Name)
		for _, m := range class.Methods {
			outcome.Tests = append(outcome.Tests, r.skipTest(class, m, StatusAborted, "class setup failed: "+err.Error()))
		}
	} else {
		outcome.Tests = r.runMethods(classCtx, class, lc.env)
	}

	r.teardown(ctx, class, cfg, lc, &outcome)
	outcome.Duration = time.Since(outcome.StartTime)
	r.reporter.ReportClassResult(outcome)
	return outcome
}

// teardown runs even after the suite timed out. It gets a fresh deadline so a
// cancelled suite still removes its containers.
func (r *Runner) teardown(ctx context.Context, class TestClass, cfg config.GlobalConfig, lc *classLifecycle, outcome *ClassOutcome) {
	base := context.WithoutCancel(ctx)
	var tctx context.Context
	var cancel context.CancelFunc
	if cfg.TeardownTimeout > 0 {
		tctx, cancel = context.WithTimeout(base, cfg.TeardownTimeout)
	} else {
		tctx, cancel = context.WithCancel(base)
	}
	defer cancel()

	if err := lc.afterAll(tctx, class, outcome); err != nil {
		if outcome.TeardownError != "" {
			outcome.TeardownError += "; "
		}
		outcome.TeardownError += err.Error()
		r.logger.Error("⚠️  Teardown of %s failed: %v\n", class.Name, err)
		r.log.Error(ctx, runnerSubsystem, err, "Teardown of class %s failed", class.Name)
	}
}

// runMethods runs the sequential methods of class in declaration order, then
// all parallel methods concurrently.
func (r *Runner) runMethods(ctx context.Context, class TestClass, env *classEnv) []TestOutcome {
	outcomes := make([]TestOutcome, len(class.Methods))
	var parallel []int
	for i, m := range class.Methods {
		if m.Parallel {
			parallel = append(parallel, i)
			continue
		}
		outcomes[i] = r.runTest(ctx, class, m, env)
	}

	var g errgroup.Group
	for _, i := range parallel {
		g.Go(func() error {
			outcomes[i] = r.runTest(ctx, class, class.Methods[i], env)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (r *Runner) runTest(ctx context.Context, class TestClass, m TestCase, env *classEnv) TestOutcome {
	if ctx.Err() != nil {
		return r.skipTest(class, m, StatusAborted, cancellationReason(ctx))
	}

	outcome := TestOutcome{
		Class:     class.Name,
		Method:    m.Name,
		Tags:      EffectiveTags(class, m),
		StartTime: time.Now(),
	}
	r.reporter.ReportTestStart(class.Name, m.Name)

	tctx := logging.WithTest(ctx, outcome.ID())
	t := newT(tctx, class.Name, m.Name, env, r.log)
	outcome.Status, outcome.Failure = t.run(m.Fn)
	outcome.Duration = time.Since(outcome.StartTime)
	outcome.Logs = t.lines()

	if outcome.Status == StatusFailed && errors.Is(context.Cause(ctx), ErrSuiteTimeout) {
		outcome.Status = StatusAborted
		outcome.Failure = cancellationReason(ctx) + "\n" + outcome.Failure
	}
	r.log.Debug(tctx, runnerSubsystem, "Finished with %s in %s", outcome.Status, outcome.Duration)
	r.reporter.ReportTestResult(outcome)
	return outcome
}

// skipTest reports a method that is never entered.
func (r *Runner) skipTest(class TestClass, m TestCase, status Status, reason string) TestOutcome {
	outcome := TestOutcome{
		Class:     class.Name,
		Method:    m.Name,
		Tags:      EffectiveTags(class, m),
		Status:    status,
		Failure:   reason,
		StartTime: time.Now(),
	}
	r.reporter.ReportTestResult(outcome)
	return outcome
}

// notRun reports a class whose deployment is never started.
func (r *Runner) notRun(class TestClass, status Status, reason string) ClassOutcome {
	outcome := ClassOutcome{
		Name:      class.Name,
		Aborted:   status == StatusAborted,
		Error:     reason,
		StartTime: time.Now(),
	}
	for _, m := range class.Methods {
		outcome.Tests = append(outcome.Tests, r.skipTest(class, m, status, reason))
	}
	r.reporter.ReportClassResult(outcome)
	return outcome
}

func classFailed(o ClassOutcome) bool {
	if o.Aborted {
		return true
	}
	for _, t := range o.Tests {
		if t.Status == StatusFailed || t.Status == StatusAborted {
			return true
		}
	}
	return false
}

func cancellationReason(ctx context.Context) string {
	if cause := context.Cause(ctx); cause != nil {
		return "aborted: " + cause.Error()
	}
	return "aborted"
}
