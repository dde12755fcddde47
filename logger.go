package arcgo

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with arcgo-specific context.
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

// WithHeap adds the heap name to the logger.
func (l *Logger) WithHeap(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("heap", name),
	}
}

// LogGrow logs the arena growing by one chunk.
func (l *Logger) LogGrow(ctx context.Context, chunk uint32, bytes int64) {
	l.DebugContext(ctx, "arena grown",
		"chunk", chunk,
		"bytes", bytes,
	)
}

// LogLimit logs an allocation refused by the memory budget.
func (l *Logger) LogLimit(ctx context.Context, used, limit int64, err error) {
	l.WarnContext(ctx, "allocation refused by memory budget",
		"used", used,
		"limit", limit,
		"error", err,
	)
}

// LogLeak logs blocks that were still live when the heap was closed.
func (l *Logger) LogLeak(ctx context.Context, live int64, slots []uint32) {
	if len(slots) > 0 {
		l.ErrorContext(ctx, "heap closed with live blocks",
			"live", live,
			"slots", slots,
		)
		return
	}
	l.ErrorContext(ctx, "heap closed with live blocks",
		"live", live,
	)
}

// LogRelease logs the heap handing its arena memory back.
func (l *Logger) LogRelease(ctx context.Context, stats Stats) {
	l.InfoContext(ctx, "heap released",
		"allocs", stats.Allocs,
		"frees", stats.Frees,
		"drops", stats.Drops,
		"bytes", stats.BytesReserved,
	)
}
