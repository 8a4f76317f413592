package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// BridgeConfig represents the full bridge configuration
type BridgeConfig struct {
	Controller ControllerConfig `yaml:"controller"`
	Pool       PoolConfig       `yaml:"connection_pool"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ControllerConfig holds the remote controller uplink settings
type ControllerConfig struct {
	URL                  string `yaml:"url"`
	Identity             string `yaml:"identity"`
	HandshakeTimeout     int    `yaml:"handshake_timeout_seconds"`
	HeartbeatInterval    int    `yaml:"heartbeat_interval_seconds"`
	ReconnectBaseDelayMs int    `yaml:"reconnect_base_delay_ms"`
	ReconnectMaxDelayMs  int    `yaml:"reconnect_max_delay_ms"`
	MaxReconnectAttempts int    `yaml:"max_reconnect_attempts"`
	InsecureSkipVerify   bool   `yaml:"insecure_skip_verify"`
}

// PoolConfig holds printer connection pool settings
type PoolConfig struct {
	MaxConnsPerEndpoint int `yaml:"max_conns_per_endpoint"`
	ConnectTimeoutMs    int `yaml:"connect_timeout_ms"`
	WaitTimeoutMs       int `yaml:"wait_timeout_ms"`
	IdleTimeoutSec      int `yaml:"idle_timeout_seconds"`
	CleanupIntervalSec  int `yaml:"cleanup_interval_seconds"`
}

// APIConfig holds local HTTP API settings
type APIConfig struct {
	Address string `yaml:"address"`
	Token   string `yaml:"token"`
}

// DatabaseConfig holds printer registry storage settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *BridgeConfig {
	return &BridgeConfig{
		Controller: ControllerConfig{
			URL:                  "wss://localhost/bridge",
			Identity:             "",
			HandshakeTimeout:     10,
			HeartbeatInterval:    30,
			ReconnectBaseDelayMs: 1000,
			ReconnectMaxDelayMs:  30000,
			MaxReconnectAttempts: 10,
		},
		Pool: PoolConfig{
			MaxConnsPerEndpoint: 3,
			ConnectTimeoutMs:    5000,
			WaitTimeoutMs:       10000,
			IdleTimeoutSec:      300,
			CleanupIntervalSec:  60,
		},
		API: APIConfig{
			Address: ":8631",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./printbridge.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*BridgeConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *BridgeConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return err
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *BridgeConfig) {
	if url := os.Getenv("PRINTBRIDGE_CONTROLLER_URL"); url != "" {
		config.Controller.URL = url
	}

	if identity := os.Getenv("PRINTBRIDGE_IDENTITY"); identity != "" {
		config.Controller.Identity = identity
	}

	if addr := os.Getenv("PRINTBRIDGE_API_ADDR"); addr != "" {
		config.API.Address = addr
	}

	if token := os.Getenv("PRINTBRIDGE_API_TOKEN"); token != "" {
		config.API.Token = token
	}

	if dbPath := os.Getenv("PRINTBRIDGE_DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if logLevel := os.Getenv("PRINTBRIDGE_LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("PRINTBRIDGE_LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}

	if maxConns := os.Getenv("PRINTBRIDGE_POOL_MAX_CONNS"); maxConns != "" {
		if val, err := strconv.Atoi(maxConns); err == nil {
			config.Pool.MaxConnsPerEndpoint = val
		}
	}

	if attempts := os.Getenv("PRINTBRIDGE_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil {
			config.Controller.MaxReconnectAttempts = val
		}
	}
}

// Validate validates the configuration
func (c *BridgeConfig) Validate() error {
	if c.Controller.URL == "" {
		return fmt.Errorf("controller URL cannot be empty")
	}

	if !strings.HasPrefix(c.Controller.URL, "ws://") && !strings.HasPrefix(c.Controller.URL, "wss://") {
		return fmt.Errorf("controller URL must use ws:// or wss:// scheme")
	}

	if c.Controller.MaxReconnectAttempts < 1 {
		return fmt.Errorf("max reconnect attempts must be at least 1")
	}

	if c.Controller.ReconnectBaseDelayMs < 1 {
		return fmt.Errorf("reconnect base delay must be positive")
	}

	if c.Controller.ReconnectMaxDelayMs < c.Controller.ReconnectBaseDelayMs {
		return fmt.Errorf("reconnect max delay must be >= base delay")
	}

	if c.Pool.MaxConnsPerEndpoint < 1 {
		return fmt.Errorf("pool max connections per endpoint must be at least 1")
	}

	if c.Pool.ConnectTimeoutMs < 1 || c.Pool.WaitTimeoutMs < 1 {
		return fmt.Errorf("pool timeouts must be positive")
	}

	if c.API.Address == "" {
		return fmt.Errorf("api address cannot be empty")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	valid := []string{"debug", "info", "warn", "error"}
	level = strings.ToLower(level)
	for _, v := range valid {
		if level == v {
			return true
		}
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *BridgeConfig) String() string {
	return fmt.Sprintf("Config{Controller: %s, API: %s, DB: %s, LogLevel: %s}",
		c.Controller.URL, c.API.Address, c.Database.Path, c.Logging.Level)
}
