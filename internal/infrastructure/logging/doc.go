// Package logging provides structured logging for FrostLux.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - JSON output (machine-parsable) or text output (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - File output, required while the terminal UI owns the screen
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "file"     # file, stdout, stderr
//	  path: ""           # empty: $XDG_CACHE_HOME/frostlux/frostlux.log
//
// # Usage
//
//	logger, closer, err := logging.Open(cfg.Logging, version)
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//	logger.Info("connecting", "gateway", cfg.GatewayAddress())
//
// # Security
//
// Never log the gateway pre-shared key or broker passwords.
package logging
