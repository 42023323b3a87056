package observability

import (
	"log/slog"
	"os"
)

const (
	attrService = "service"
	attrVersion = "version"
)

// NewLogger builds a structured logger writing to stderr. Service
// metadata is pre-attached so it appears on every record, including
// those emitted through slog.With groups.
func NewLogger(cfg Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	if cfg.LogJSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	attrs := []slog.Attr{slog.String(attrService, cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, slog.String(attrVersion, cfg.ServiceVersion))
	}

	return slog.New(handler.WithAttrs(attrs))
}

// InitLogging builds the process logger and installs it as the slog
// default, so package-level slog.With loggers inherit it.
func InitLogging(cfg Config) *slog.Logger {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	return logger
}
