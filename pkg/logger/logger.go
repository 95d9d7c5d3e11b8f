package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey string

const LoggerKey contextKey = "logger"

type Logger struct {
	*zerolog.Logger
}

// New creates a new logger instance with service context
func New(service string) *Logger {
	hostname, _ := os.Hostname()

	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "@timestamp" // ELK compatible

	// Create logger with JSON output for production
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Str("hostname", hostname).
		Str("environment", getEnv("ENVIRONMENT", "development")).
		Str("version", getEnv("SERVICE_VERSION", "unknown")).
		Logger()

	return &Logger{&logger}
}

// WithContext returns a logger from context or creates a new one
func WithContext(ctx context.Context, service string) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok {
		return logger
	}
	return New(service)
}

// ToContext adds logger to context
func (l *Logger) ToContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, LoggerKey, l)
}

// WithRequestID adds request/correlation ID for tracing
func (l *Logger) WithRequestID(requestID string) *Logger {
	logger := l.Logger.With().Str("request_id", requestID).Logger()
	return &Logger{&logger}
}

// WithJob adds job context for backup runs
func (l *Logger) WithJob(jobID, jobName string) *Logger {
	logger := l.Logger.With().
		Str("job_id", jobID).
		Str("job_name", jobName).
		Logger()
	return &Logger{&logger}
}

// WithError adds error context
func (l *Logger) WithError(err error) *Logger {
	logger := l.Logger.With().Err(err).Logger()
	return &Logger{&logger}
}

// LogRunStart logs the start of a backup run
func (l *Logger) LogRunStart(jobID, jobName, trigger string) {
	l.Info().
		Str("action", "run_start").
		Str("job_id", jobID).
		Str("job_name", jobName).
		Str("trigger", trigger).
		Msg("Starting backup run")
}

// LogRunComplete logs run completion with outcome metrics
func (l *Logger) LogRunComplete(jobID string, status string, duration time.Duration, exitCode int) {
	l.Info().
		Str("action", "run_complete").
		Str("job_id", jobID).
		Str("status", status).
		Dur("duration", duration).
		Int("exit_code", exitCode).
		Bool("success", status == "success").
		Msg("Backup run completed")
}

// LogNotify logs notification dispatch attempts
func (l *Logger) LogNotify(jobID string, delivered bool, duration time.Duration, err error) {
	event := l.Info()
	if err != nil {
		event = l.Warn().Err(err)
	}

	event.
		Str("action", "notify").
		Str("job_id", jobID).
		Bool("delivered", delivered).
		Dur("duration", duration).
		Msg("Notification dispatch")
}

// LogRegistryWrite logs registry update operations
func (l *Logger) LogRegistryWrite(operation string, jobID string, duration time.Duration, err error) {
	event := l.Info()
	if err != nil {
		event = l.Error().Err(err)
	}

	event.
		Str("action", "registry_write").
		Str("operation", operation).
		Str("job_id", jobID).
		Dur("duration", duration).
		Bool("success", err == nil).
		Msg("Registry operation")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
