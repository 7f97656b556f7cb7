// Package observability provides structured logging and metrics collection.
//
// Logger wraps log/slog with a persistent component field.
// MetricsCollector records request latencies and outcome counters for the
// chat panel.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger wraps slog with a persistent component name.
type Logger struct {
	mu        sync.RWMutex
	inner     *slog.Logger
	component string
	fields    []slog.Attr
}

// NewLogger creates a structured JSON logger for a component.
// Output defaults to os.Stderr if w is nil.
func NewLogger(component string, w io.Writer) *Logger {
	return NewLoggerLevel(component, w, slog.LevelDebug)
}

// NewLoggerLevel is NewLogger with an explicit minimum level.
func NewLoggerLevel(component string, w io.Writer, level slog.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		inner:     slog.New(handler),
		component: component,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(component string, h slog.Handler) *Logger {
	return &Logger{
		inner:     slog.New(h),
		component: component,
	}
}

// Discard returns a logger that drops everything. Used as the default for
// components constructed without a logger.
func Discard() *Logger {
	return NewLoggerWithHandler("discard", slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	fields := make([]slog.Attr, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	return &Logger{
		inner:     l.inner.With(slog.Any(key, value)),
		component: l.component,
		fields:    append(fields, slog.Any(key, value)),
	}
}

// Component returns a logger for a sub-component sharing the same sink.
func (l *Logger) Component(name string) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:     l.inner,
		component: name,
		fields:    l.fields,
	}
}

// attrs prepends the component name to the arguments.
func (l *Logger) attrs(args []any) []any {
	return append([]any{slog.String("component", l.component)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	l.inner.Debug(msg, l.attrs(args)...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	l.inner.Info(msg, l.attrs(args)...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	l.inner.Warn(msg, l.attrs(args)...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	l.inner.Error(msg, l.attrs(args)...)
}

// Transition logs a state machine transition.
func (l *Logger) Transition(from, to string, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("from", from),
		slog.String("to", to),
	}, args...)
	l.inner.Info("transition", allArgs...)
}

// Request logs a completed backend call.
func (l *Logger) Request(method, path string, status int, latencyMs int64, args ...any) {
	allArgs := append([]any{
		slog.String("component", l.component),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Int64("latency_ms", latencyMs),
	}, args...)
	l.inner.Debug("request", allArgs...)
}

// ComponentName returns the component name associated with this logger.
func (l *Logger) ComponentName() string {
	return l.component
}
