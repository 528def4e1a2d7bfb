package testing

import (
	"context"
	"errors"
	"io"
	"time"

	"conformance/internal/config"
	"conformance/internal/deployment"
	"conformance/internal/orchestrator"
)

// Status is the outcome of a single test method.
type Status string

const (
	// StatusPassed indicates the test passed
	StatusPassed Status = "PASSED"
	// StatusFailed indicates an assertion failed or the test panicked
	StatusFailed Status = "FAILED"
	// StatusAborted indicates the test never ran to completion because its
	// class setup failed or the suite timed out
	StatusAborted Status = "ABORTED"
	// StatusSkipped indicates the test was not run
	StatusSkipped Status = "SKIPPED"
)

// ErrSuiteTimeout is the cause of cancellations triggered by SuiteConfig.Timeout.
var ErrSuiteTimeout = errors.New("suite timeout exceeded")

// ErrFailFast is recorded on tests that were not run because an earlier
// class failed and fail-fast is enabled.
var ErrFailFast = errors.New("not run: fail-fast after an earlier failure")

// TestLogger provides centralized logging for test execution
type TestLogger interface {
	// Debug logs debug-level messages (only shown when debug=true)
	Debug(format string, args ...interface{})
	// Info logs info-level messages (shown when verbose=true or debug=true)
	Info(format string, args ...interface{})
	// Error logs error-level messages (always shown)
	Error(format string, args ...interface{})
	// IsDebugEnabled returns whether debug logging is enabled
	IsDebugEnabled() bool
	// IsVerboseEnabled returns whether verbose logging is enabled
	IsVerboseEnabled() bool
}

// TestCase is one test method of a class.
type TestCase struct {
	Name string
	Tags []string
	// Parallel methods run concurrently with each other, after the
	// sequential methods of the class finished.
	Parallel bool
	Fn       func(t *T)
}

// TestClass groups test methods sharing one deployment.
type TestClass struct {
	Name string
	Tags []string
	// Configure declares the deployment of the class.
	Configure func(b *deployment.Builder)
	Methods   []TestCase
}

// Suite is a named batch of tests run with a shared tag filter and runtime
// environment overrides.
type Suite struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Tags        string            `yaml:"tags,omitempty" json:"tags,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// SuiteConfig defines how one suite is executed.
type SuiteConfig struct {
	Suite Suite `json:"suite"`
	// Tags overrides the suite's own tag filter when set.
	Tags string `json:"tags,omitempty"`
	// Parallel is the number of classes run concurrently.
	Parallel int `json:"parallel"`
	// FailFast stops scheduling classes after the first failure.
	FailFast bool `json:"fail_fast"`
	// Timeout bounds the whole suite. Zero means no limit.
	Timeout time.Duration `json:"timeout"`
	// ReportDir receives container logs of every class.
	ReportDir string `json:"report_dir,omitempty"`
	// Config is the base configuration. The suite's env is applied to a copy.
	Config config.GlobalConfig `json:"-"`
	// Stderr receives container logs of aborted classes.
	Stderr io.Writer `json:"-"`
}

// TagExpression returns the effective tag filter of the suite run.
func (c SuiteConfig) TagExpression() string {
	if c.Tags != "" {
		return c.Tags
	}
	return c.Suite.Tags
}

// TestOutcome is the result of one test method.
type TestOutcome struct {
	Class     string        `json:"class"`
	Method    string        `json:"method"`
	Tags      []string      `json:"tags,omitempty"`
	Status    Status        `json:"status"`
	Failure   string        `json:"failure,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Logs      []string      `json:"logs,omitempty"`
}

// ID returns the test identity as class/method.
func (o TestOutcome) ID() string {
	return o.Class + "/" + o.Method
}

// ClassOutcome is the result of one test class.
type ClassOutcome struct {
	Name string `json:"name"`
	// Aborted is set when the class setup failed or the class never started.
	Aborted bool   `json:"aborted"`
	Error   string `json:"error,omitempty"`
	// TeardownError records a failed teardown. It does not change test statuses.
	TeardownError string        `json:"teardown_error,omitempty"`
	Retained      bool          `json:"retained,omitempty"`
	LogFiles      []string      `json:"log_files,omitempty"`
	StartTime     time.Time     `json:"start_time"`
	Duration      time.Duration `json:"duration"`
	Tests         []TestOutcome `json:"tests"`
}

// SuiteResult is the result of running one suite. It is a value: once Run
// returned, nothing else holds a reference to it.
type SuiteResult struct {
	Suite     string         `json:"suite"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	Aborted   int            `json:"aborted"`
	Skipped   int            `json:"skipped"`
	TimedOut  bool           `json:"timed_out,omitempty"`
	Classes   []ClassOutcome `json:"classes"`
}

// Tests returns every test outcome in class order.
func (r SuiteResult) Tests() []TestOutcome {
	var out []TestOutcome
	for _, c := range r.Classes {
		out = append(out, c.Tests...)
	}
	return out
}

// Succeeded reports whether no test failed or aborted. Skipped tests do not
// count either way.
func (r SuiteResult) Succeeded() bool {
	return r.Failed == 0 && r.Aborted == 0
}

func (r *SuiteResult) count(o TestOutcome) {
	r.Total++
	switch o.Status {
	case StatusPassed:
		r.Passed++
	case StatusFailed:
		r.Failed++
	case StatusAborted:
		r.Aborted++
	case StatusSkipped:
		r.Skipped++
	}
}

// Deployer starts and stops the deployment of a test class.
// *orchestrator.Orchestrator is the production implementation.
type Deployer interface {
	Start(ctx context.Context, class string, cfg config.GlobalConfig, d deployment.Descriptor) (*orchestrator.RunningDeployment, error)
	Stop(ctx context.Context, rd *orchestrator.RunningDeployment) error
}

// TestReporter interface defines how test results are reported
type TestReporter interface {
	// ReportStart is called when the suite begins
	ReportStart(cfg SuiteConfig)
	// ReportClassStart is called before a class deployment is started
	ReportClassStart(class TestClass)
	// ReportTestStart is called when a test method begins
	ReportTestStart(class, method string)
	// ReportTestResult is called when a test method completes
	ReportTestResult(outcome TestOutcome)
	// ReportClassResult is called after a class was torn down
	ReportClassResult(outcome ClassOutcome)
	// ReportSuiteResult is called when all classes complete
	ReportSuiteResult(result SuiteResult)
	// SetParallelMode enables or disables parallel output buffering
	SetParallelMode(parallel bool)
}
