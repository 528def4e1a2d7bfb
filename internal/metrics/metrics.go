// Package metrics collects per-suite Prometheus metrics and writes them in
// the text exposition format, ready for a node_exporter textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FileName is the name of the metrics file inside a suite directory.
const FileName = "metrics.prom"

// Collector holds the metrics of one suite run. Each Collector owns its
// registry so suites run in the same process do not share series.
type Collector struct {
	suite    string
	registry *prometheus.Registry

	tests         *prometheus.CounterVec
	testDuration  *prometheus.HistogramVec
	classes       *prometheus.CounterVec
	classDuration *prometheus.HistogramVec
	suiteDuration prometheus.Gauge
	suiteSuccess  prometheus.Gauge
}

// NewCollector creates the metrics of suite.
func NewCollector(suite string) *Collector {
	constLabels := prometheus.Labels{"suite": suite}
	c := &Collector{
		suite:    suite,
		registry: prometheus.NewRegistry(),
		tests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "conformance_tests_total",
				Help:        "Tests finished, by class and status",
				ConstLabels: constLabels,
			},
			[]string{"class", "status"},
		),
		testDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "conformance_test_duration_seconds",
				Help:        "Duration of test methods",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"class"},
		),
		classes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "conformance_classes_total",
				Help:        "Test classes finished, by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		classDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "conformance_class_duration_seconds",
				Help:        "Duration of test classes including deployment and teardown",
				ConstLabels: constLabels,
				Buckets:     prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"class"},
		),
		suiteDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "conformance_suite_duration_seconds",
			Help:        "Wall clock duration of the suite",
			ConstLabels: constLabels,
		}),
		suiteSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "conformance_suite_success",
			Help:        "1 if every test of the suite passed or was skipped",
			ConstLabels: constLabels,
		}),
	}
	c.registry.MustRegister(c.tests, c.testDuration, c.classes, c.classDuration, c.suiteDuration, c.suiteSuccess)
	return c
}

// Suite returns the name of the suite the collector belongs to.
func (c *Collector) Suite() string {
	return c.suite
}

// Registry returns the registry holding the suite metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveTest records a finished test method.
func (c *Collector) ObserveTest(class, status string, d time.Duration) {
	c.tests.WithLabelValues(class, status).Inc()
	if d > 0 {
		c.testDuration.WithLabelValues(class).Observe(d.Seconds())
	}
}

// ObserveClass records a finished class. outcome is "completed", "aborted"
// or "retained".
func (c *Collector) ObserveClass(class, outcome string, d time.Duration) {
	c.classes.WithLabelValues(outcome).Inc()
	if d > 0 {
		c.classDuration.WithLabelValues(class).Observe(d.Seconds())
	}
}

// ObserveSuite records the end of the suite.
func (c *Collector) ObserveSuite(d time.Duration, success bool) {
	c.suiteDuration.Set(d.Seconds())
	if success {
		c.suiteSuccess.Set(1)
	} else {
		c.suiteSuccess.Set(0)
	}
}

// WriteFile writes all metrics to path in the text exposition format.
func (c *Collector) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
