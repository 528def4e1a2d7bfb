package testing

import (
	"path/filepath"
	"sync"

	"conformance/internal/metrics"
)

// metricsReporter feeds test and class outcomes into a metrics collector and
// writes metrics.prom when the suite completes.
type metricsReporter struct {
	mu        sync.Mutex
	path      string
	collector *metrics.Collector
	err       error
}

// NewMetricsReporter creates a reporter writing dir/metrics.prom.
func NewMetricsReporter(dir, suite string) TestReporter {
	return &metricsReporter{
		path:      filepath.Join(dir, metrics.FileName),
		collector: metrics.NewCollector(suite),
	}
}

func (r *metricsReporter) ReportStart(SuiteConfig) {}
func (r *metricsReporter) ReportClassStart(TestClass) {}
func (r *metricsReporter) ReportTestStart(string, string) {}
func (r *metricsReporter) SetParallelMode(bool) {}

// ReportTestResult counts the outcome of a test.
func (r *metricsReporter) ReportTestResult(outcome TestOutcome) {
	r.collector.ObserveTest(outcome.Class, string(outcome.Status), outcome.Duration)
}

// ReportClassResult counts the outcome of a class.
func (r *metricsReporter) ReportClassResult(outcome ClassOutcome) {
	kind := "completed"
	switch {
	case outcome.Aborted:
		kind = "aborted"
	case outcome.Retained:
		kind = "retained"
	}
	r.collector.ObserveClass(outcome.Name, kind, outcome.Duration)
}

// ReportSuiteResult writes the metrics file.
func (r *metricsReporter) ReportSuiteResult(result SuiteResult) {
	r.collector.ObserveSuite(result.Duration, result.Succeeded())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = r.collector.WriteFile(r.path)
}

// Err returns the error of the last write, if any.
func (r *metricsReporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
