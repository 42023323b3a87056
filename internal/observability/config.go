// Package observability provides structured logging and the Prometheus
// diagnostics surface (health, readiness, metrics endpoints) for the
// bridge process.
package observability

import "log/slog"

// defaultServiceName is the OTel meter scope and log service name.
const defaultServiceName = "edgebridge"

// Config holds logging and diagnostics configuration.
type Config struct {
	// ServiceName tags every log record and the meter scope.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// LogJSON enables JSON-formatted log output.
	LogJSON bool
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName: defaultServiceName,
		LogLevel:    slog.LevelInfo,
	}
}

// ParseLevel maps a config file level string onto a slog severity.
// Unknown or empty strings fall back to info.
func ParseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
