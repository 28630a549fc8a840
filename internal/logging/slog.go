package logging

// file: internal/logging/slog.go

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level mirrors slog levels so callers don't import log/slog directly.
type Level = slog.Level

// Supported log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// levelVar is shared by every handler created here so SetLevel takes effect globally.
var levelVar = new(slog.LevelVar)

// slogLogger adapts *slog.Logger to the Logger interface.
type slogLogger struct {
	inner *slog.Logger
}

func (l *slogLogger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// WithContext attaches trace identifiers when the context carries them.
func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok && reqID != "" {
		return &slogLogger{inner: l.inner.With("requestID", reqID)}
	}
	return l
}

func (l *slogLogger) WithField(key string, value any) Logger {
	return &slogLogger{inner: l.inner.With(key, value)}
}

type requestIDKey struct{}

// ContextWithRequestID stores a request identifier picked up by Logger.WithContext.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		return GetNoopLogger()
	}
	return &slogLogger{inner: l}
}

// InitLogging installs a JSON slog logger writing to w as the default logger.
func InitLogging(level Level, w io.Writer) {
	initWithHandler(level, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// InitTextLogging installs a human-readable slog logger writing to w.
func InitTextLogging(level Level, w io.Writer) {
	initWithHandler(level, slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

func initWithHandler(level Level, h slog.Handler) {
	levelVar.Set(level)
	SetDefaultLogger(&slogLogger{inner: slog.New(h)})
}

// SetupDefaultLogger configures stderr logging from a level name ("debug", "info", ...).
// Stderr keeps stdout free for the stdio transport.
func SetupDefaultLogger(level string) {
	InitTextLogging(ParseLevel(level), os.Stderr)
}

// ParseLevel converts a level name to a Level, defaulting to info.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the minimum level of loggers created by this package.
func SetLevel(level Level) {
	levelVar.Set(level)
}

// IsDebugEnabled reports whether debug messages are currently emitted.
func IsDebugEnabled() bool {
	return levelVar.Level() <= LevelDebug
}
