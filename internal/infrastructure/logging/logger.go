package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frostlux/frostlux/internal/infrastructure/config"
)

// Logger wraps slog.Logger with FrostLux default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to stdout or stderr.
//
// Output "file" is not handled here because it needs a handle that must be
// closed; use Open for that. New falls back to stderr in that case so that
// early startup errors are never lost.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	default:
		output = os.Stderr
	}
	return NewWithWriter(cfg, version, output)
}

// Open creates a Logger for cfg, opening the log file when Output is "file".
//
// The TUI owns the terminal, so in interactive mode every log line must go
// to a file. An empty cfg.Path selects frostlux.log in the user cache directory.
//
// Returns:
//   - *Logger: Configured logger
//   - io.Closer: Closes the log file; a no-op for stream outputs
//   - error: If the log directory or file cannot be created
func Open(cfg config.LoggingConfig, version string) (*Logger, io.Closer, error) {
	if strings.ToLower(cfg.Output) != "file" {
		return New(cfg, version), nopCloser{}, nil
	}

	path := cfg.Path
	if path == "" {
		dir, err := config.CacheDir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, "frostlux.log")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return NewWithWriter(cfg, version, f), f, nil
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "frostlux"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
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
//
// Example:
//
//	supLogger := logger.With("component", "supervisor")
//	supLogger.Info("connected") // Includes component=supervisor
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a logger for use before configuration is loaded.
// It writes JSON to stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}, "dev")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
