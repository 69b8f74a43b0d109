// Package logging provides structured logging for Gray Logic Pixels.
//
// This package wraps Go's standard log/slog package so every component
// (device loops, registry, event relay, telemetry) logs with the same fields.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
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
//	registry.SetLogger(logger.Component("registry"))
//	logger.Error("flush failed", "device_id", id, "error", err)
//
// Per-tick messages (frame flushed, frame skipped) belong at debug level;
// a 60 Hz device would otherwise flood the log.
package logging
