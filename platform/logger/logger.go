// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
	// CountryKey is the context key for the country scope of the request
	CountryKey contextKey = "country"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, user_id, and country from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if userID, ok := ctx.Value(UserIDKey).(string); ok && userID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("user_id", userID))}
	}

	if country, ok := ctx.Value(CountryKey).(string); ok && country != "" {
		newLogger = newLogger.WithCountry(country)
	}

	return newLogger
}

// WithCountry returns a logger scoped to a country.
func (l *Logger) WithCountry(country string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("country", country)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// CredentialEvent logs mailbox credential lifecycle events
// (connect, refresh, revalidation, disconnect).
func (l *Logger) CredentialEvent(event, country, provider string, success bool, reason string) {
	if success {
		l.Info("credential_event",
			slog.String("event", event),
			slog.String("country", country),
			slog.String("provider", provider),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("credential_event",
			slog.String("event", event),
			slog.String("country", country),
			slog.String("provider", provider),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// MailEvent logs a notification send attempt.
func (l *Logger) MailEvent(country, status string, recipients int, success bool, reason string) {
	if success {
		l.Info("mail_event",
			slog.String("country", country),
			slog.String("case_status", status),
			slog.Int("recipients", recipients),
			slog.Bool("success", success),
		)
	} else {
		l.Warn("mail_event",
			slog.String("country", country),
			slog.String("case_status", status),
			slog.Int("recipients", recipients),
			slog.Bool("success", success),
			slog.String("reason", reason),
		)
	}
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
