package testing

import (
	"errors"
	"sync"
)

// fileReporter is a reporter that writes a file and can fail doing so.
type fileReporter interface {
	Err() error
}

// MultiReporter fans every event out to a list of reporters, in order.
type MultiReporter struct {
	mu        sync.Mutex
	reporters []TestReporter
}

// NewMultiReporter creates a reporter forwarding to all of reporters.
// Nil entries are ignored.
func NewMultiReporter(reporters ...TestReporter) *MultiReporter {
	m := &MultiReporter{}
	for _, r := range reporters {
		if r != nil {
			m.reporters = append(m.reporters, r)
		}
	}
	return m
}

func (m *MultiReporter) each(fn func(TestReporter)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reporters {
		fn(r)
	}
}

func (m *MultiReporter) ReportStart(cfg SuiteConfig) {
	m.each(func(r TestReporter) { r.ReportStart(cfg) })
}

func (m *MultiReporter) ReportClassStart(class TestClass) {
	m.each(func(r TestReporter) { r.ReportClassStart(class) })
}

func (m *MultiReporter) ReportTestStart(class, method string) {
	m.each(func(r TestReporter) { r.ReportTestStart(class, method) })
}

func (m *MultiReporter) ReportTestResult(outcome TestOutcome) {
	m.each(func(r TestReporter) { r.ReportTestResult(outcome) })
}

func (m *MultiReporter) ReportClassResult(outcome ClassOutcome) {
	m.each(func(r TestReporter) { r.ReportClassResult(outcome) })
}

func (m *MultiReporter) ReportSuiteResult(result SuiteResult) {
	m.each(func(r TestReporter) { r.ReportSuiteResult(result) })
}

func (m *MultiReporter) SetParallelMode(parallel bool) {
	m.each(func(r TestReporter) { r.SetParallelMode(parallel) })
}

// Err joins the write errors of all file-writing reporters.
func (m *MultiReporter) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, r := range m.reporters {
		if fr, ok := r.(fileReporter); ok {
			if err := fr.Err(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
