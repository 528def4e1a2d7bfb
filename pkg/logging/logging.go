package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a case-sensitive level name as printed by String back
// into a LogLevel. Unknown names map to LevelInfo.
func ParseLevel(name string) LogLevel {
	switch name {
	case "DEBUG", "debug":
		return LevelDebug
	case "WARN", "warn":
		return LevelWarn
	case "ERROR", "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a subsystem-aware structured logger. The process-wide logger is
// configured with InitForCLI; suite runs create their own instance with
// NewLogger so that every suite gets a separate log file.
type Logger struct {
	slog *slog.Logger
}

// NewLogger creates a Logger writing text records at or above level to output.
// Records logged with a context carrying a test identity (see WithTest) are
// stamped with a "test" attribute.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: level.SlogLevel(),
	}
	return &Logger{slog: slog.New(&testHandler{inner: slog.NewTextHandler(output, opts)})}
}

// Slog exposes the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

func (l *Logger) log(ctx context.Context, level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if l == nil || l.slog == nil {
		fmt.Fprintf(os.Stderr, "[LOGGING_ERROR] Logger not initialized. Log: %s [%s] %s\n", time.Now().Format(time.RFC3339), level, fmt.Sprintf(messageFmt, args...))
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.slog.Enabled(ctx, level.SlogLevel()) {
		return
	}

	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	var slogAttrs []slog.Attr
	slogAttrs = append(slogAttrs, slog.String("subsystem", subsystem))
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	l.slog.LogAttrs(ctx, level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, subsystem string, messageFmt string, args ...interface{}) {
	l.log(ctx, LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func (l *Logger) Info(ctx context.Context, subsystem string, messageFmt string, args ...interface{}) {
	l.log(ctx, LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, subsystem string, messageFmt string, args ...interface{}) {
	l.log(ctx, LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, subsystem string, err error, messageFmt string, args ...interface{}) {
	l.log(ctx, LevelError, subsystem, err, messageFmt, args...)
}

var defaultLogger atomic.Pointer[Logger]

// InitForCLI initializes the process-wide logger for CLI mode.
func InitForCLI(filterLevel LogLevel, output io.Writer) {
	l := NewLogger(filterLevel, output)
	defaultLogger.Store(l)
	slog.SetDefault(l.slog) // Set for any global slog calls if necessary
}

// Default returns the process-wide logger configured by InitForCLI.
func Default() *Logger {
	return defaultLogger.Load()
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	Default().log(context.Background(), LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	Default().log(context.Background(), LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	Default().log(context.Background(), LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	Default().log(context.Background(), LevelError, subsystem, err, messageFmt, args...)
}

func init() {
	InitForCLI(LevelInfo, os.Stderr)
}
