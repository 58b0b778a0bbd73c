package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const appName = "frostlux"

// DefaultPath returns the configuration file location.
//
// FROSTLUX_CONFIG wins when set. Otherwise the file lives in the user
// config directory ($XDG_CONFIG_HOME/frostlux/config.yaml on Linux).
func DefaultPath() (string, error) {
	if v := os.Getenv("FROSTLUX_CONFIG"); v != "" {
		return v, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, appName, "config.yaml"), nil
}

// CacheDir returns the per-user cache directory used for log files.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("locating cache directory: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// JournalPath returns the configured journal path, or a file in the cache
// directory when none is set.
func (c *Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// EnsureDefault writes the default configuration to path if no file exists.
//
// Returns:
//   - bool: true if a new file was written
//   - error: If the directory or file cannot be created
func EnsureDefault(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultFile), 0o600); err != nil {
		return false, fmt.Errorf("writing default config: %w", err)
	}
	return true, nil
}

// validHost reports whether s is an IP literal or an RFC 1123 host name,
// optionally followed by :port.
func validHost(s string) bool {
	host := s
	if h, p, err := net.SplitHostPort(s); err == nil {
		n, perr := strconv.Atoi(p)
		if perr != nil || n < 1 || n > 65535 {
			return false
		}
		host = h
	}
	if net.ParseIP(host) != nil {
		return true
	}
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// splitHostPort separates an optional port from host, falling back to def.
func splitHostPort(host string, def int) (string, int) {
	h, p, err := net.SplitHostPort(host)
	if err != nil {
		return host, def
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, def
	}
	return h, n
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

const defaultFile = `# FrostLux configuration.
# Secrets may be supplied via FROSTLUX_GATEWAY_IDENTITY and FROSTLUX_GATEWAY_PSK
# or a .env file in this directory.

gateway:
  host: "192.168.0.131"
  port: 5684
  identity: ""
  psk: ""
  request_timeout: 5s
  connect_timeout: 10s

connection:
  initial_backoff: 1s
  max_backoff: 60s
  timeout_threshold: 3

commands:
  timeout: 2s
  max_retries: 3

refresh:
  stale_after: 3
  margin: 0

ui:
  theme: auto          # auto | light | dark
  refresh_interval: 5  # seconds

scenes:
  exclude: []
  exclude_by_scene: {}
  custom: []
  # - key: dinner
  #   name: Dinner
  #   aliases: [middag]
  #   on: true
  #   brightness: 40
  #   color_temp: 454
  #   lights:
  #     Kitchen:
  #       brightness: 80

logging:
  level: info
  format: json
  output: file         # file | stderr | stdout

mqtt:
  enabled: false
  broker:
    host: localhost
    port: 1883
    client_id: frostlux
  qos: 1
  topic_prefix: frostlux
  commands: false

influxdb:
  enabled: false
  url: ""
  org: ""
  bucket: frostlux

journal:
  enabled: false
  path: ""
`
