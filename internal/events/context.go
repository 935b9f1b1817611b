package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	projectIDKey
	runIDKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithProjectID tags the context and its logger with a project.
func WithProjectID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("project_id", id)
	ctx = context.WithValue(ctx, projectIDKey, id)
	return WithLogger(ctx, logger)
}

// WithRunID tags the context and its logger with a sync cycle id.
func WithRunID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("run_id", id)
	ctx = context.WithValue(ctx, runIDKey, id)
	return WithLogger(ctx, logger)
}

// GetProjectID retrieves project ID from context.
func GetProjectID(ctx context.Context) string {
	if id, ok := ctx.Value(projectIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRunID retrieves the cycle id from context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = &Logger{
		mu:        &sync.Mutex{},
		level:     InfoLevel,
		format:    "text",
		output:    os.Stdout,
		timestamp: true,
		fields:    make(map[string]interface{}),
	}
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}
