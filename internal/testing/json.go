package testing

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileName is the name of the JSON report inside a suite directory.
const JSONFileName = "report.json"

// jsonReport is the document written to report.json.
type jsonReport struct {
	Config SuiteConfig `json:"config"`
	SuiteResult
	Success bool `json:"success"`
}

// jsonReporter captures the suite configuration and writes the complete
// result as JSON when the suite finishes.
type jsonReporter struct {
	mu     sync.Mutex
	path   string
	config SuiteConfig
	err    error
}

// NewJSONReporter creates a reporter writing dir/report.json.
func NewJSONReporter(dir string) TestReporter {
	return &jsonReporter{path: filepath.Join(dir, JSONFileName)}
}

// ReportStart records the configuration of the suite.
func (r *jsonReporter) ReportStart(cfg SuiteConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = cfg
}

func (r *jsonReporter) ReportClassStart(TestClass) {}
func (r *jsonReporter) ReportTestStart(string, string) {}
func (r *jsonReporter) ReportTestResult(TestOutcome) {}
func (r *jsonReporter) ReportClassResult(ClassOutcome) {}
func (r *jsonReporter) SetParallelMode(bool) {}

// ReportSuiteResult writes the report file.
func (r *jsonReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.MarshalIndent(jsonReport{Config: r.config, SuiteResult: result, Success: result.Succeeded()}, "", "  ")
	if err != nil {
		r.err = fmt.Errorf("encoding %s: %w", r.path, err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.err = fmt.Errorf("creating report directory: %w", err)
		return
	}
	if err := os.WriteFile(r.path, append(data, '\n'), 0o644); err != nil {
		r.err = fmt.Errorf("writing %s: %w", r.path, err)
		return
	}
	r.err = nil
}

// Err returns the error of the last write, if any.
func (r *jsonReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
