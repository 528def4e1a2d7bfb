package testing

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"conformance/internal/metrics"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() SuiteResult {
	start := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	result := SuiteResult{
		Suite:     "singlePartition",
		StartTime: start,
		EndTime:   start.Add(3 * time.Second),
		Duration:  3 * time.Second,
		Classes: []ClassOutcome{
			{
				Name:      "State",
				StartTime: start,
				Duration:  2 * time.Second,
				LogFiles:  []string{"/reports/State/runtime.log"},
				Tests: []TestOutcome{
					{Class: "State", Method: "add", Status: StatusPassed, Duration: 1500 * time.Millisecond, Logs: []string{"counter at 1"}},
					{Class: "State", Method: "reset", Status: StatusFailed, Duration: 250 * time.Millisecond, Failure: "expected 0\nactual 1"},
					{Class: "State", Method: "lazy", Status: StatusSkipped, Failure: ErrFailFast.Error()},
				},
			},
			{
				Name:    "Kill",
				Aborted: true,
				Error:   "starting runtime: exec format error",
				Tests: []TestOutcome{
					{Class: "Kill", Method: "killInvocation", Status: StatusAborted, Failure: "class setup failed: starting runtime: exec format error"},
				},
			},
		},
	}
	for _, o := range result.Tests() {
		result.count(o)
	}
	return result
}

func TestConsoleReporter_Sequential(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false, false, false)
	result := sampleResult()

	r.ReportStart(SuiteConfig{Suite: Suite{Name: "singlePartition"}})
	r.ReportClassStart(TestClass{Name: "State"})
	for _, o := range result.Classes[0].Tests {
		r.ReportTestStart(o.Class, o.Method)
		r.ReportTestResult(o)
	}
	r.ReportClassResult(result.Classes[0])
	r.ReportClassResult(result.Classes[1])
	r.ReportSuiteResult(result)

	text := out.String()
	assert.Contains(t, text, "🧪 Starting suite singlePartition")
	assert.Contains(t, text, "🎯 State/add... ✅ (1.5s)\n")
	assert.Contains(t, text, "🎯 State/reset... ❌ (250ms)\n   expected 0\n   actual 1\n")
	assert.NotContains(t, text, ErrFailFast.Error(), "skip reasons are only printed in verbose mode")
	assert.Contains(t, text, "💥 Class Kill aborted: starting runtime: exec format error")
	assert.Contains(t, text, "Some tests failed")
	assert.Contains(t, text, "   ❌ State/reset")
	assert.Contains(t, text, "   💥 Kill/killInvocation")
	assert.Contains(t, text, "📏 Success Rate: 25.0%")
	assert.NotContains(t, text, "\x1b[", "colors are disabled")
}

func TestConsoleReporter_ParallelLinesStayWhole(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false, false, false)
	r.SetParallelMode(true)

	r.ReportTestStart("A", "one")
	r.ReportTestStart("B", "two")
	r.ReportTestResult(TestOutcome{Class: "B", Method: "two", Status: StatusPassed})
	r.ReportTestResult(TestOutcome{Class: "A", Method: "one", Status: StatusPassed})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "🎯 B/two... ✅"))
	assert.True(t, strings.HasPrefix(lines[1], "🎯 A/one... ✅"))
}

func TestConsoleReporter_VerboseAndDebug(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, true, true, false)

	r.ReportStart(SuiteConfig{
		Suite:    Suite{Name: "lazyState", Tags: TagLazyState, Env: map[string]string{"B": "2", "A": "1"}},
		Parallel: 2,
	})
	r.ReportClassStart(TestClass{Name: "State", Tags: []string{"state"}, Methods: []TestCase{{Name: "add"}}})
	r.ReportTestResult(TestOutcome{Class: "State", Method: "add", Status: StatusSkipped, Failure: "not today", Logs: []string{"hello"}})
	r.ReportClassResult(ClassOutcome{Name: "State", Retained: true, LogFiles: []string{"a.log", "b.log"}})

	text := out.String()
	assert.Contains(t, text, "• Tags: lazy-state")
	assert.Contains(t, text, "• Parallel classes: 2")
	assert.Less(t, strings.Index(text, "• Env: A=1"), strings.Index(text, "• Env: B=2"))
	assert.Contains(t, text, "🏗️  Deploying State (1 tests)")
	assert.Contains(t, text, "   not today\n")
	assert.Contains(t, text, "   📝 hello\n")
	assert.Contains(t, text, "📌 Deployment of State retained")
	assert.Contains(t, text, "Container logs: a.log, b.log")
}

func TestBuildJUnit(t *testing.T) {
	doc := BuildJUnit(sampleResult())

	assert.Equal(t, "singlePartition", doc.Name)
	assert.Equal(t, "3.000", doc.Time)
	assert.Equal(t, 4, doc.Tests)
	assert.Equal(t, 1, doc.Failures)
	assert.Equal(t, 1, doc.Errors)
	assert.Equal(t, 1, doc.Skipped)
	require.Len(t, doc.Suites, 2)

	state := doc.Suites[0]
	assert.Equal(t, "State", state.Name)
	assert.Equal(t, 0, state.ID)
	assert.Equal(t, "2026-10-01T12:00:00Z", state.Timestamp)
	require.NotNil(t, state.SystemOut)
	assert.Equal(t, "container log: /reports/State/runtime.log", state.SystemOut.Data)

	add, reset, lazy := state.Testcases[0], state.Testcases[1], state.Testcases[2]
	assert.Equal(t, "State", add.Classname)
	assert.Equal(t, "1.500", add.Time)
	assert.Nil(t, add.Failure)
	require.NotNil(t, add.SystemOut)
	assert.Equal(t, "counter at 1", add.SystemOut.Data)

	require.NotNil(t, reset.Failure)
	assert.Equal(t, "expected 0", reset.Failure.Message)
	assert.Equal(t, "expected 0\nactual 1", reset.Failure.Data)
	assert.Equal(t, "AssertionFailure", reset.Failure.Type)

	require.NotNil(t, lazy.Skipped)
	assert.Equal(t, ErrFailFast.Error(), lazy.Skipped.Message)

	kill := doc.Suites[1]
	assert.Empty(t, kill.Timestamp)
	assert.Equal(t, "class error: starting runtime: exec format error", kill.SystemOut.Data)
	require.NotNil(t, kill.Testcases[0].Error)
	assert.Equal(t, "Aborted", kill.Testcases[0].Error.Type)
}

func TestJUnitReporter_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	r := NewJUnitReporter(dir)
	r.ReportSuiteResult(sampleResult())
	require.NoError(t, r.(fileReporter).Err())

	data, err := os.ReadFile(filepath.Join(dir, JUnitFileName))
	require.NoError(t, err)

	var doc junit.Testsuites
	require.NoError(t, xml.Unmarshal(data, &doc))
	assert.Equal(t, 4, doc.Tests)
	assert.Len(t, doc.Suites, 2)
}

func TestJSONReporter_WritesFile(t *testing.T) {
	dir := t.TempDir()
	r := NewJSONReporter(dir)
	r.ReportStart(SuiteConfig{Suite: Suite{Name: "singlePartition"}, Parallel: 3, FailFast: true})
	r.ReportSuiteResult(sampleResult())
	require.NoError(t, r.(fileReporter).Err())

	data, err := os.ReadFile(filepath.Join(dir, JSONFileName))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, false, doc["success"])
	assert.Equal(t, "singlePartition", doc["suite"])
	assert.EqualValues(t, 4, doc["total"])
	assert.EqualValues(t, 1, doc["aborted"])

	cfg := doc["config"].(map[string]any)
	assert.EqualValues(t, 3, cfg["parallel"])
	assert.Equal(t, true, cfg["fail_fast"])

	classes := doc["classes"].([]any)
	require.Len(t, classes, 2)
	tests := classes[0].(map[string]any)["tests"].([]any)
	assert.Equal(t, "FAILED", tests[1].(map[string]any)["status"])
}

func TestJSONReporter_WriteError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	r := NewJSONReporter(filepath.Join(blocker, "suite"))
	r.ReportSuiteResult(sampleResult())
	assert.Error(t, r.(fileReporter).Err())
}

func TestMetricsReporter_WritesFile(t *testing.T) {
	dir := t.TempDir()
	r := NewMetricsReporter(dir, "singlePartition")
	result := sampleResult()
	for _, o := range result.Tests() {
		r.ReportTestResult(o)
	}
	for _, c := range result.Classes {
		r.ReportClassResult(c)
	}
	r.ReportSuiteResult(result)
	require.NoError(t, r.(fileReporter).Err())

	data, err := os.ReadFile(filepath.Join(dir, metrics.FileName))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `conformance_tests_total{class="State",status="FAILED",suite="singlePartition"} 1`)
	assert.Contains(t, text, `conformance_classes_total{outcome="aborted",suite="singlePartition"} 1`)
	assert.Contains(t, text, `conformance_suite_success{suite="singlePartition"} 0`)
}

type failingFileReporter struct {
	recordingReporter
	err error
}

func (f *failingFileReporter) Err() error { return f.err }

func TestMultiReporter(t *testing.T) {
	first := &recordingReporter{}
	second := &failingFileReporter{err: errors.New("disk full")}
	third := &failingFileReporter{}
	m := NewMultiReporter(first, nil, second, third)

	m.ReportStart(SuiteConfig{Suite: Suite{Name: "default"}})
	m.SetParallelMode(true)
	m.ReportTestStart("A", "a")
	m.ReportSuiteResult(SuiteResult{Suite: "default"})

	for _, r := range []*recordingReporter{first, &second.recordingReporter} {
		assert.Equal(t, []string{"start default", "test A/a", "suite result"}, r.events)
		assert.True(t, r.parallel)
	}
	assert.EqualError(t, m.Err(), "disk full")
}
