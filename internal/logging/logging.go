// Package logging provides slog helpers shared across the application:
// structured operation/error logging and safe cleanup wrappers.
package logging

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
)

type contextKey struct{}

// WithLogger returns a context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in the context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// LogOperation records a structured operation event at Info level.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Info(operation, args...)
}

// LogError records an error event with the error attached as an attribute.
func LogError(logger *slog.Logger, message string, err error, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.Any("error", err))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	logger.Error(message, args...)
}

// SafeCloseWithLogging closes the resource and logs a failure instead of
// silently discarding it. Intended for use in defer statements.
func SafeCloseWithLogging(closer io.Closer, logger *slog.Logger, resource string) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", resource))
	}
}

// SafeRollbackWithLogging rolls back the transaction and logs any failure
// other than the transaction already being finished. Intended for use in
// defer statements; a committed transaction makes the rollback a no-op.
func SafeRollbackWithLogging(tx *sql.Tx, logger *slog.Logger, operation string) {
	if tx == nil {
		return
	}
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		LogError(logger, "failed to roll back transaction", err, slog.String("operation", operation))
	}
}
