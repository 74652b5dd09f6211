// Package logging provides structured logging for the kiosk controller.
//
// It wraps Go's standard log/slog package to give every component a
// consistent JSON-structured logger with default fields (service, version)
// and level-based filtering (debug, info, warn, error).
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("sequence engine started")
//	compLogger := logger.With("component", "sequence")
//
// Never log secrets: API keys, the QR private key, and backend credentials
// must never reach a log line. config.Config.Sanitized() exists precisely so
// --check-config output is safe to paste into a bug report.
package logging
