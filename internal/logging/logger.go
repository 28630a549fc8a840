// Package logging provides the structured logger every package logs through,
// backed by log/slog. Components obtain a named child with GetLogger.
package logging

// file: internal/logging/logger.go

import (
	"context"
	"sync/atomic"
)

// Logger is the logging surface used across the server. Arguments after the
// message are alternating key/value pairs, as in log/slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// WithContext attaches request-scoped values found in ctx, such as the request id.
	WithContext(ctx context.Context) Logger
	// WithField returns a child logger that always emits key=value.
	WithField(key string, value any) Logger
}

// discardLogger drops everything. Constructors fall back to it when handed a nil Logger.
type discardLogger struct{}

func (discardLogger) Debug(string, ...any)                 {}
func (discardLogger) Info(string, ...any)                  {}
func (discardLogger) Warn(string, ...any)                  {}
func (discardLogger) Error(string, ...any)                 {}
func (d discardLogger) WithContext(context.Context) Logger { return d }
func (d discardLogger) WithField(string, any) Logger       { return d }

// GetNoopLogger returns a Logger that discards all output.
func GetNoopLogger() Logger {
	return discardLogger{}
}

// loggerBox lets atomic.Value hold differently typed Logger implementations.
type loggerBox struct{ Logger }

var root atomic.Value

func init() {
	root.Store(loggerBox{GetNoopLogger()})
}

// SetDefaultLogger replaces the process-wide logger. Loggers already handed out
// by GetLogger keep writing to the previous one. A nil logger is ignored.
func SetDefaultLogger(logger Logger) {
	if logger != nil {
		root.Store(loggerBox{logger})
	}
}

// GetLogger returns a child of the default logger tagged component=name.
func GetLogger(name string) Logger {
	return root.Load().(loggerBox).WithField("component", name)
}
