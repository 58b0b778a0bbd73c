package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FrostLux.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Connection ConnectionConfig `yaml:"connection"`
	Commands   CommandsConfig   `yaml:"commands"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	UI         UIConfig         `yaml:"ui"`
	Scenes     ScenesConfig     `yaml:"scenes"`
	Logging    LoggingConfig    `yaml:"logging"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Journal    JournalConfig    `yaml:"journal"`
}

// GatewayConfig contains the Trådfri gateway address and DTLS credentials.
type GatewayConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Identity string `yaml:"identity"`
	PSK      string `yaml:"psk"`

	// RequestTimeout bounds a single CoAP exchange used by the refresher.
	// Default: 5s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ConnectTimeout bounds one DTLS handshake attempt.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// ConnectionConfig contains the reconnect policy of the session supervisor.
type ConnectionConfig struct {
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// TimeoutThreshold is the number of consecutive request timeouts that
	// tears the session down.
	TimeoutThreshold int `yaml:"timeout_threshold"`
}

// CommandsConfig contains the command dispatcher policy.
type CommandsConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// RefreshConfig contains the background refresh policy.
type RefreshConfig struct {
	// StaleAfter is the number of consecutive failed cycles after which
	// the light set is shown as stale.
	StaleAfter int `yaml:"stale_after"`

	// Margin is the number of refresh cycles a pending write survives
	// before a refresh may overwrite it. Zero protects it until the
	// dispatcher resolves it.
	Margin uint64 `yaml:"margin"`
}

// UIConfig contains terminal UI settings.
type UIConfig struct {
	Theme           string `yaml:"theme"`
	RefreshInterval int    `yaml:"refresh_interval"`
}

// ScenesConfig contains scene exclusions and user-defined scenes.
type ScenesConfig struct {
	// Exclude lists light names skipped by every scene.
	Exclude []string `yaml:"exclude"`

	// ExcludeByScene lists light names skipped by one scene, keyed by scene key.
	ExcludeByScene map[string][]string `yaml:"exclude_by_scene"`

	// Custom adds scenes to the built-in vocabulary.
	Custom []CustomSceneConfig `yaml:"custom"`
}

// CustomSceneConfig defines a scene in the config file. The inline target
// applies to every light; Lights overrides it per light name.
type CustomSceneConfig struct {
	Key               string   `yaml:"key"`
	Name              string   `yaml:"name"`
	Aliases           []string `yaml:"aliases"`
	Hotkey            string   `yaml:"hotkey"`
	SceneTargetConfig `yaml:",inline"`
	Lights            map[string]SceneTargetConfig `yaml:"lights"`
}

// SceneTargetConfig is a partial attribute write. Nil fields are left untouched.
type SceneTargetConfig struct {
	On         *bool `yaml:"on,omitempty"`
	Brightness *int  `yaml:"brightness,omitempty"`
	ColorTemp  *int  `yaml:"color_temp,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`

	// Path is used when Output is "file". Empty selects the user cache directory.
	Path string `yaml:"path"`
}

// MQTTConfig contains the optional LAN broker mirror settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Commands    bool                `yaml:"commands"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// JournalConfig contains the SQLite command journal settings.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. A .env file next to the config file, if present
//  3. YAML file values (override defaults)
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: FROSTLUX_SECTION_KEY
// For example: FROSTLUX_GATEWAY_PSK, FROSTLUX_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails.
//     Validation failures wrap ErrInvalidHost or ErrMissingCredential.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads KEY=value pairs into the process environment.
// Variables already set in the environment win. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:           "192.168.0.131",
			Port:           5684,
			RequestTimeout: 5 * time.Second,
			ConnectTimeout: 10 * time.Second,
		},
		Connection: ConnectionConfig{
			InitialBackoff:   time.Second,
			MaxBackoff:       60 * time.Second,
			TimeoutThreshold: 3,
		},
		Commands: CommandsConfig{
			Timeout:    2 * time.Second,
			MaxRetries: 3,
		},
		Refresh: RefreshConfig{
			StaleAfter: 3,
		},
		UI: UIConfig{
			Theme:           "auto",
			RefreshInterval: 5,
		},
		Scenes: ScenesConfig{
			ExcludeByScene: map[string][]string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "file",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "frostlux",
			},
			QoS:         1,
			TopicPrefix: "frostlux",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "frostlux",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FROSTLUX_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("FROSTLUX_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("FROSTLUX_GATEWAY_IDENTITY"); v != "" {
		cfg.Gateway.Identity = v
	}
	if v := os.Getenv("FROSTLUX_GATEWAY_PSK"); v != "" {
		cfg.Gateway.PSK = v
	}

	// MQTT
	if v := os.Getenv("FROSTLUX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FROSTLUX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FROSTLUX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FROSTLUX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Gateway problems are reported with the sentinel errors ErrInvalidHost and
// ErrMissingCredential so callers can name the offending field; everything
// else wraps ErrInvalidConfig.
//
// Returns:
//   - error: All validation failures joined, or nil if valid
func (c *Config) Validate() error {
	var errs []error

	// Gateway validation
	if c.Gateway.Host == "" {
		errs = append(errs, fmt.Errorf("%w: gateway.host is required", ErrInvalidHost))
	} else if !validHost(c.Gateway.Host) {
		errs = append(errs, fmt.Errorf("%w: gateway.host %q is not a well-formed address", ErrInvalidHost, c.Gateway.Host))
	}
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: gateway.port must be between 1 and 65535", ErrInvalidHost))
	}
	if c.Gateway.Identity == "" {
		errs = append(errs, fmt.Errorf("%w: gateway.identity is required (set FROSTLUX_GATEWAY_IDENTITY)", ErrMissingCredential))
	}
	if c.Gateway.PSK == "" {
		errs = append(errs, fmt.Errorf("%w: gateway.psk is required (set FROSTLUX_GATEWAY_PSK)", ErrMissingCredential))
	}

	// Policy validation
	if c.Connection.InitialBackoff <= 0 || c.Connection.MaxBackoff < c.Connection.InitialBackoff {
		errs = append(errs, fmt.Errorf("%w: connection backoff must satisfy 0 < initial_backoff <= max_backoff", ErrInvalidConfig))
	}
	if c.Connection.TimeoutThreshold < 1 {
		errs = append(errs, fmt.Errorf("%w: connection.timeout_threshold must be at least 1", ErrInvalidConfig))
	}
	if c.Commands.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: commands.timeout must be positive", ErrInvalidConfig))
	}
	if c.Commands.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("%w: commands.max_retries must be at least 1", ErrInvalidConfig))
	}
	if c.UI.RefreshInterval < 1 {
		errs = append(errs, fmt.Errorf("%w: ui.refresh_interval must be at least 1 second", ErrInvalidConfig))
	}
	switch c.UI.Theme {
	case "auto", "light", "dark":
	default:
		errs = append(errs, fmt.Errorf("%w: ui.theme must be auto, light or dark", ErrInvalidConfig))
	}

	// Optional integrations
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, fmt.Errorf("%w: mqtt.qos must be 0, 1, or 2", ErrInvalidConfig))
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, fmt.Errorf("%w: influxdb.url is required when influxdb is enabled", ErrInvalidConfig))
	}

	for i, s := range c.Scenes.Custom {
		if s.Key == "" && s.Name == "" {
			errs = append(errs, fmt.Errorf("%w: scenes.custom[%d] needs a key or a name", ErrInvalidConfig, i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %w", errors.Join(errs...))
	}

	return nil
}

// RefreshInterval returns the background refresh interval as a Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.UI.RefreshInterval) * time.Second
}

// GatewayAddress returns host:port for the DTLS dial.
func (c *Config) GatewayAddress() string {
	host, port := splitHostPort(c.Gateway.Host, c.Gateway.Port)
	return joinHostPort(host, port)
}
