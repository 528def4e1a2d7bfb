package logging

import (
	"context"
	"log/slog"
)

type testKey struct{}

// WithTest returns a context carrying the identity of the currently executing
// test. Every record logged with the returned context, or a context derived
// from it, carries a "test" attribute with that identity.
func WithTest(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, testKey{}, id)
}

// TestFromContext returns the test identity stored by WithTest.
func TestFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(testKey{}).(string)
	return id, ok && id != ""
}

// testHandler decorates records with the test identity found in the context.
type testHandler struct {
	inner slog.Handler
}

func (h *testHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *testHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := TestFromContext(ctx); ok {
		r = r.Clone()
		r.AddAttrs(slog.String("test", id))
	}
	return h.inner.Handle(ctx, r)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *testHandler) WithGroup(name string) slog.Handler {
	return &testHandler{inner: h.inner.WithGroup(name)}
}

type loggerKey struct{}

// WithLogger returns a context carrying l. Code that only has a context, such
// as API clients used inside a test, logs through FromContext so its records
// end up in the log of the suite that owns the context.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored by WithLogger, or the process-wide
// logger when ctx carries none.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return l
		}
	}
	return Default()
}
