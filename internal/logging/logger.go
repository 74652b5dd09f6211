// Package logging provides structured logging for the kiosk controller.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/paka-eco/kiosk-controller/internal/config"
)

// Logger wraps slog.Logger with kiosk-specific defaults.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger from the logging section of the configuration.
//
// Output defaults to stdout; LOG_FILE (via cfg.File) redirects to a file,
// opened append-only and left open for the life of the process.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			output = f
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	handler := slog.Handler(slog.NewJSONHandler(output, opts))
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "kiosk-controller"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error. Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info"}, "dev")
}
