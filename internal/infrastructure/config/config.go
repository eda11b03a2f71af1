package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the housekeeper.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Registry    RegistryConfig    `yaml:"registry"`
	Housekeeper HousekeeperConfig `yaml:"housekeeper"`
	Database    DatabaseConfig    `yaml:"database"`
	API         APIConfig         `yaml:"api"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RegistryConfig contains the configuration registry (Home Assistant)
// WebSocket connection settings.
type RegistryConfig struct {
	// URL is the WebSocket endpoint of the registry API
	// (e.g. "ws://supervisor/core/websocket").
	URL string `yaml:"url"`

	// Token is the long-lived access token used for the auth handshake.
	// Usually injected via HOUSEKEEPER_REGISTRY_TOKEN or SUPERVISOR_TOKEN.
	Token string `yaml:"token"`

	// CallTimeout is the per-call timeout in seconds.
	CallTimeout int `yaml:"call_timeout"`

	// DialTimeout is the connect/auth handshake timeout in seconds.
	DialTimeout int `yaml:"dial_timeout"`
}

// HousekeeperConfig contains engine settings.
type HousekeeperConfig struct {
	// DataDir is where plan.json, rollback.json and ignored.json live.
	DataDir string `yaml:"data_dir"`

	// RulesPath is an explicit path to rules.yaml. If empty, a chain of
	// conventional locations is tried (see housekeeper.LoadRules).
	RulesPath string `yaml:"rules_path"`

	// FallbackAreaName is the area created/used for entities that cannot
	// be matched to any existing area when fallback placement is requested.
	FallbackAreaName string `yaml:"fallback_area_name"`
}

// DatabaseConfig contains SQLite database settings for the run history.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains the optional event notifier settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
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

// InfluxDBConfig contains the optional run-metrics sink settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads, parses and validates the configuration file at path.
//
// Defaults are applied first, then the YAML file, then environment
// variable overrides (HOUSEKEEPER_SECTION_KEY pattern, e.g.
// HOUSEKEEPER_REGISTRY_URL, HOUSEKEEPER_DATABASE_PATH).
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be read, parsed, or validation fails
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
		Registry: RegistryConfig{
			URL:         "ws://supervisor/core/websocket",
			CallTimeout: 30,
			DialTimeout: 10,
		},
		Housekeeper: HousekeeperConfig{
			DataDir:          "./data/housekeeper",
			FallbackAreaName: "Unassigned",
		},
		Database: DatabaseConfig{
			Path:        "./data/housekeeper.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8099,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "housekeeper",
			},
			QoS:         1,
			TopicPrefix: "housekeeper",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOUSEKEEPER_SECTION_KEY.
func applyEnvOverrides(cfg *Config) {
	// Registry
	if v := os.Getenv("HOUSEKEEPER_REGISTRY_URL"); v != "" {
		cfg.Registry.URL = v
	}
	if v := os.Getenv("HOUSEKEEPER_REGISTRY_TOKEN"); v != "" {
		cfg.Registry.Token = v
	}
	// SUPERVISOR_TOKEN is injected by the registry host when the
	// housekeeper runs as a managed add-on.
	if cfg.Registry.Token == "" {
		cfg.Registry.Token = os.Getenv("SUPERVISOR_TOKEN")
	}

	// Housekeeper
	if v := os.Getenv("HOUSEKEEPER_DATA_DIR"); v != "" {
		cfg.Housekeeper.DataDir = v
	}
	if v := os.Getenv("HOUSEKEEPER_RULES_PATH"); v != "" {
		cfg.Housekeeper.RulesPath = v
	}

	// Database
	if v := os.Getenv("HOUSEKEEPER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("HOUSEKEEPER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("HOUSEKEEPER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOUSEKEEPER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOUSEKEEPER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HOUSEKEEPER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Registry.URL == "" {
		errs = append(errs, "registry.url is required")
	}
	if !strings.HasPrefix(c.Registry.URL, "ws://") && !strings.HasPrefix(c.Registry.URL, "wss://") {
		errs = append(errs, "registry.url must be a ws:// or wss:// URL")
	}
	if c.Registry.CallTimeout <= 0 {
		errs = append(errs, "registry.call_timeout must be positive")
	}

	if c.Housekeeper.DataDir == "" {
		errs = append(errs, "housekeeper.data_dir is required")
	}
	if c.Housekeeper.FallbackAreaName == "" {
		errs = append(errs, "housekeeper.fallback_area_name is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCallTimeout returns the registry per-call timeout as a Duration.
func (c *RegistryConfig) GetCallTimeout() time.Duration {
	return time.Duration(c.CallTimeout) * time.Second
}

// GetDialTimeout returns the registry dial timeout as a Duration.
func (c *RegistryConfig) GetDialTimeout() time.Duration {
	return time.Duration(c.DialTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
