package testing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"conformance/internal/orchestrator"
	"conformance/pkg/logging"
)

// Names of the transcripts written to every suite directory.
const (
	StdoutFileName = "testrunner.stdout"
	StderrFileName = "testrunner.stderr"
	LogFileName    = "testrunner.log"
)

// OutputOptions controls where the output of a suite goes.
type OutputOptions struct {
	// BaseDir receives one directory per suite.
	BaseDir string
	// Echo, when set, also receives the console output.
	Echo io.Writer
	// EchoErr, when set, also receives error output.
	EchoErr io.Writer
	// Color enables colors on Echo.
	Color   bool
	Verbose bool
	Debug   bool
}

// SuiteOutput holds the files and reporters of one suite run.
type SuiteOutput struct {
	Dir      string
	Reporter *MultiReporter
	Logger   TestLogger
	SuiteLog *logging.Logger
	// Stderr receives container logs of aborted classes.
	Stderr io.Writer

	files []*os.File
}

// OpenSuiteOutput creates <BaseDir>/<suite> with its transcripts and
// assembles the reporters writing the console output, report.xml,
// report.json and metrics.prom.
func OpenSuiteOutput(opts OutputOptions, suite string) (*SuiteOutput, error) {
	dir := filepath.Join(opts.BaseDir, suite)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
	}

	o := &SuiteOutput{Dir: dir}
	stdout, err := o.create(StdoutFileName)
	if err != nil {
		return nil, err
	}
	stderr, err := o.create(StderrFileName)
	if err != nil {
		o.Close()
		return nil, err
	}
	logFile, err := o.create(LogFileName)
	if err != nil {
		o.Close()
		return nil, err
	}

	level := logging.LevelInfo
	if opts.Debug {
		level = logging.LevelDebug
	}
	o.SuiteLog = logging.NewLogger(level, logFile)

	out, errOut := io.Writer(stdout), io.Writer(stderr)
	if opts.Echo != nil {
		out = io.MultiWriter(stdout, opts.Echo)
	}
	if opts.EchoErr != nil {
		errOut = io.MultiWriter(stderr, opts.EchoErr)
	}
	o.Stderr = errOut
	o.Logger = NewWriterLogger(out, errOut, opts.Verbose, opts.Debug)

	reporters := []TestReporter{NewConsoleReporter(stdout, opts.Verbose, opts.Debug, false)}
	if opts.Echo != nil {
		reporters = append(reporters, NewConsoleReporter(opts.Echo, opts.Verbose, opts.Debug, opts.Color))
	}
	reporters = append(reporters,
		NewJUnitReporter(dir),
		NewJSONReporter(dir),
		NewMetricsReporter(dir, suite),
	)
	o.Reporter = NewMultiReporter(reporters...)
	return o, nil
}

func (o *SuiteOutput) create(name string) (*os.File, error) {
	f, err := os.Create(filepath.Join(o.Dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	o.files = append(o.files, f)
	return f, nil
}

// NewRunner creates a runner reporting into the suite output.
func (o *SuiteOutput) NewRunner(registry *Registry, deployer Deployer, logs orchestrator.LogSource, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{WithLogSource(logs), WithSuiteLog(o.SuiteLog)}, opts...)
	return NewRunner(registry, deployer, o.Reporter, o.Logger, opts...)
}

// Configure points the report directory and stderr transcript of sc at the
// suite output.
func (o *SuiteOutput) Configure(sc SuiteConfig) SuiteConfig {
	sc.ReportDir = o.Dir
	sc.Stderr = o.Stderr
	return sc
}

// Close closes the transcripts and returns any report file error.
func (o *SuiteOutput) Close() error {
	var errs []error
	if o.Reporter != nil {
		errs = append(errs, o.Reporter.Err())
	}
	for _, f := range o.files {
		errs = append(errs, f.Close())
	}
	o.files = nil
	return errors.Join(errs...)
}
