// Package logging provides structured logging for the cloud bridge.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	coord := logger.Component("coordinator")
//	coord.Warn("remote batch query failed", "error", err)
//
// # Security
//
// Never log the cloud session cookie or CSRF token. Log the configuration
// only through config.Config.String, which redacts them.
package logging
