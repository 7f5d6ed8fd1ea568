package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for vlx2mqtt.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Velux    VeluxConfig    `yaml:"velux"`
	History  HistoryConfig  `yaml:"history"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Log      LogConfig      `yaml:"log"`
}

// MQTTConfig contains MQTT broker connection and topic settings.
type MQTTConfig struct {
	// Host and Port locate the broker.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Login and Password are broker credentials. Empty login disables auth.
	Login    string `yaml:"login"`
	Password string `yaml:"password"`

	// RootTopic is the prefix for per-device topics:
	//   <roottopic>/<device>      state (non-retained)
	//   <roottopic>/<device>/set  command (subscribed)
	RootTopic string `yaml:"roottopic"`

	// StatusTopic carries the retained bridge lifecycle status strings.
	StatusTopic string `yaml:"statustopic"`

	// ClientID is the MQTT client identifier. Defaults to "vlx2mqtt-<pid>".
	ClientID string `yaml:"client_id"`

	// TLS enables an ssl:// broker connection.
	TLS bool `yaml:"tls"`

	// ConnectRetryDelay is the wait between failed connect attempts (seconds).
	ConnectRetryDelay int `yaml:"connect_retry_delay"`

	// DisconnectRetryDelay is the wait after an unexpected disconnect before
	// the bridge attempts to reconnect (seconds).
	DisconnectRetryDelay int `yaml:"disconnect_retry_delay"`
}

// VeluxConfig contains KLF200 gateway connection settings.
type VeluxConfig struct {
	// Host is the KLF200 hostname or IP. The gateway listens on port 51200
	// unless Port overrides it.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Password is the gateway's WiFi/API password.
	Password string `yaml:"password"`

	// ConnectTimeout is the maximum time to wait for connection (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`
}

// HistoryConfig contains settings for the SQLite position/command history.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Logfile is an optional log file path. Empty means stdout.
	Logfile string `yaml:"logfile"`

	// Verbose enables debug-level logging when truthy
	// ("1", "true", "yes", "on", case-insensitive).
	Verbose string `yaml:"verbose"`

	// Format selects "json" or "text" output. Default: text.
	Format string `yaml:"format"`
}

// VerboseEnabled reports whether the verbose setting is truthy.
func (l LogConfig) VerboseEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(l.Verbose)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Default KLF200 API port.
const defaultVeluxPort = 51200

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VLX2MQTT_SECTION_KEY
// For example: VLX2MQTT_MQTT_HOST, VLX2MQTT_VELUX_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:                 "localhost",
			Port:                 1883,
			RootTopic:            "vlx",
			StatusTopic:          "vlx/status",
			ConnectRetryDelay:    10,
			DisconnectRetryDelay: 5,
		},
		Velux: VeluxConfig{
			Port:           defaultVeluxPort,
			ConnectTimeout: 10,
		},
		History: HistoryConfig{
			Path:        "./data/vlx2mqtt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Log: LogConfig{
			Format: "text",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VLX2MQTT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VLX2MQTT_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("VLX2MQTT_MQTT_LOGIN"); v != "" {
		cfg.MQTT.Login = v
	}
	if v := os.Getenv("VLX2MQTT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("VLX2MQTT_VELUX_HOST"); v != "" {
		cfg.Velux.Host = v
	}
	if v := os.Getenv("VLX2MQTT_VELUX_PASSWORD"); v != "" {
		cfg.Velux.Password = v
	}
	if v := os.Getenv("VLX2MQTT_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("VLX2MQTT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 1 and 65535")
	}
	if c.MQTT.RootTopic == "" {
		errs = append(errs, "mqtt.roottopic is required")
	}
	if strings.ContainsAny(c.MQTT.RootTopic, "+#") {
		errs = append(errs, "mqtt.roottopic must not contain wildcards")
	}
	if c.MQTT.StatusTopic == "" {
		errs = append(errs, "mqtt.statustopic is required")
	}

	if c.Velux.Host == "" {
		errs = append(errs, "velux.host is required")
	}
	if c.Velux.Port < 1 || c.Velux.Port > 65535 {
		errs = append(errs, "velux.port must be between 1 and 65535")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectRetryDelay returns the broker connect retry delay as a Duration.
func (c *Config) GetConnectRetryDelay() time.Duration {
	return time.Duration(c.MQTT.ConnectRetryDelay) * time.Second
}

// GetDisconnectRetryDelay returns the post-disconnect wait as a Duration.
func (c *Config) GetDisconnectRetryDelay() time.Duration {
	return time.Duration(c.MQTT.DisconnectRetryDelay) * time.Second
}

// GetVeluxConnectTimeout returns the KLF200 connect timeout as a Duration.
func (c *Config) GetVeluxConnectTimeout() time.Duration {
	return time.Duration(c.Velux.ConnectTimeout) * time.Second
}
