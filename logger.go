package aggcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with aggcache-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithHeader adds a segment header id field to the logger.
func (l *Logger) WithHeader(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("header", id),
	}
}

// WithMeasure adds a measure field to the logger.
func (l *Logger) WithMeasure(measure string) *Logger {
	return &Logger{
		Logger: l.Logger.With("measure", measure),
	}
}

// WithCount adds a count field to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return &Logger{
		Logger: l.Logger.With("count", count),
	}
}

// LogRequest logs an aggregation request.
func (l *Logger) LogRequest(ctx context.Context, id string, status Status, rollupErr error) {
	if rollupErr != nil {
		l.WarnContext(ctx, "rollup failed, recompute required",
			"header", id,
			"error", rollupErr,
		)
		return
	}
	l.DebugContext(ctx, "aggregation request completed",
		"header", id,
		"status", status.String(),
	)
}

// LogRollup logs a rollup from sources segments.
func (l *Logger) LogRollup(ctx context.Context, id string, sources int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "rollup failed",
			"header", id,
			"sources", sources,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "rollup completed",
			"header", id,
			"sources", sources,
		)
	}
}

// LogLoad logs a grouping-set load.
func (l *Logger) LogLoad(ctx context.Context, segments, published int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "load failed",
			"error", err,
		)
	case published < segments:
		l.WarnContext(ctx, "load completed with unpublished segments",
			"segments", segments,
			"published", published,
		)
	default:
		l.InfoContext(ctx, "load completed",
			"segments", segments,
		)
	}
}

// LogFlush logs a flush.
func (l *Logger) LogFlush(ctx context.Context, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"removed", removed,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"removed", removed,
		)
	}
}
