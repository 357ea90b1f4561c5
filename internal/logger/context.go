package logger

import (
	"context"
	"log/slog"
	"os"
)

type contextKey struct{}

var defaultLogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

// WithLogger returns a new context with the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns a logger from the given context, falling back to a
// stdout logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if value, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
			return value
		}
	}
	return defaultLogger
}

// Debug logs a message with debug level.
func Debug(ctx context.Context, msg string, tags ...any) {
	FromContext(ctx).DebugContext(ctx, msg, tags...)
}

// Info logs a message with info level.
func Info(ctx context.Context, msg string, tags ...any) {
	FromContext(ctx).InfoContext(ctx, msg, tags...)
}

// Warn logs a message with warn level.
func Warn(ctx context.Context, msg string, tags ...any) {
	FromContext(ctx).WarnContext(ctx, msg, tags...)
}

// Error logs a message with error level.
func Error(ctx context.Context, msg string, tags ...any) {
	FromContext(ctx).ErrorContext(ctx, msg, tags...)
}
