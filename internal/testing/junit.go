package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"
)

// JUnitFileName is the name of the JUnit report inside a suite directory.
const JUnitFileName = "report.xml"

// junitReporter writes report.xml when the suite completes. Every class
// becomes one testsuite element.
type junitReporter struct {
	mu   sync.Mutex
	path string
	err  error
}

// NewJUnitReporter creates a reporter writing dir/report.xml.
func NewJUnitReporter(dir string) TestReporter {
	return &junitReporter{path: filepath.Join(dir, JUnitFileName)}
}

func (r *junitReporter) ReportStart(SuiteConfig) {}
func (r *junitReporter) ReportClassStart(TestClass) {}
func (r *junitReporter) ReportTestStart(string, string) {}
func (r *junitReporter) ReportTestResult(TestOutcome) {}
func (r *junitReporter) ReportClassResult(ClassOutcome) {}
func (r *junitReporter) SetParallelMode(bool) {}

// ReportSuiteResult writes the report file.
func (r *junitReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = writeJUnit(r.path, BuildJUnit(result))
}

// Err returns the error of the last write, if any.
func (r *junitReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// BuildJUnit converts a suite result into a JUnit document. FAILED maps to a
// failure element, ABORTED to an error element and SKIPPED to a skipped
// element.
func BuildJUnit(result SuiteResult) junit.Testsuites {
	suites := junit.Testsuites{
		Name: result.Suite,
		Time: junitDuration(result.Duration),
	}
	for i, class := range result.Classes {
		ts := junit.Testsuite{
			Name: class.Name,
			ID:   i,
			Time: junitDuration(class.Duration),
		}
		if !class.StartTime.IsZero() {
			ts.SetTimestamp(class.StartTime)
		}
		if out := classOutput(class); out != "" {
			ts.SystemOut = &junit.Output{Data: out}
		}
		for _, t := range class.Tests {
			ts.AddTestcase(junitTestcase(t))
		}
		suites.AddSuite(ts)
	}
	return suites
}

func junitTestcase(o TestOutcome) junit.Testcase {
	tc := junit.Testcase{
		Name:      o.Method,
		Classname: o.Class,
		Time:      junitDuration(o.Duration),
	}
	switch o.Status {
	case StatusFailed:
		tc.Failure = &junit.Result{Message: firstLine(o.Failure), Type: "AssertionFailure", Data: o.Failure}
	case StatusAborted:
		tc.Error = &junit.Result{Message: firstLine(o.Failure), Type: "Aborted", Data: o.Failure}
	case StatusSkipped:
		tc.Skipped = &junit.Result{Message: firstLine(o.Failure)}
	}
	if len(o.Logs) > 0 {
		tc.SystemOut = &junit.Output{Data: strings.Join(o.Logs, "\n")}
	}
	return tc
}

func classOutput(c ClassOutcome) string {
	var lines []string
	if c.Error != "" {
		lines = append(lines, "class error: "+c.Error)
	}
	if c.TeardownError != "" {
		lines = append(lines, "teardown error: "+c.TeardownError)
	}
	if c.Retained {
		lines = append(lines, "deployment retained")
	}
	for _, f := range c.LogFiles {
		lines = append(lines, "container log: "+f)
	}
	return strings.Join(lines, "\n")
}

func writeJUnit(path string, doc junit.Testsuites) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := doc.WriteXML(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

func junitDuration(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
