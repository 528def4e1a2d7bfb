package testing

import (
	"fmt"
	"io"
	"sync"
)

// writerLogger implements TestLogger on top of two writers. Lines from
// concurrently running classes are written whole.
type writerLogger struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	verbose bool
	debug   bool
}

// NewWriterLogger creates a logger writing info and debug output to out and
// errors to errOut.
func NewWriterLogger(out, errOut io.Writer, verbose, debug bool) TestLogger {
	return &writerLogger{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		debug:   debug,
	}
}

func (l *writerLogger) write(w io.Writer, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(w, format, args...)
}

func (l *writerLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.write(l.out, format, args...)
	}
}

func (l *writerLogger) Info(format string, args ...interface{}) {
	if l.verbose || l.debug {
		l.write(l.out, format, args...)
	}
}

func (l *writerLogger) Error(format string, args ...interface{}) {
	l.write(l.errOut, format, args...)
}

func (l *writerLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *writerLogger) IsVerboseEnabled() bool {
	return l.verbose
}

// silentLogger implements TestLogger, suppressing all output
type silentLogger struct {
	verbose bool
	debug   bool
}

// NewSilentLogger creates a logger that suppresses all output
func NewSilentLogger(verbose, debug bool) TestLogger {
	return &silentLogger{
		verbose: verbose,
		debug:   debug,
	}
}

func (l *silentLogger) Debug(format string, args ...interface{}) {}

func (l *silentLogger) Info(format string, args ...interface{}) {}

func (l *silentLogger) Error(format string, args ...interface{}) {}

func (l *silentLogger) IsDebugEnabled() bool {
	return l.debug
}

func (l *silentLogger) IsVerboseEnabled() bool {
	return l.verbose
}
