package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete license-server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Admin     AdminConfig     `yaml:"admin" envconfig:"ADMIN"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	SMTP      SMTPConfig      `yaml:"smtp" envconfig:"SMTP"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// AdminConfig contains the admin API credential. Key is required: the server
// refuses to start without one rather than running an open admin surface.
type AdminConfig struct {
	Key string `yaml:"key" envconfig:"KEY"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the admin API
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// StorageConfig selects and configures the license/event store backend
type StorageConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER" default:"sqlite"`
	Path   string `yaml:"path" envconfig:"PATH" default:"data/licenses.db"`
}

// TelemetryConfig bounds the retained telemetry history. MaxEvents is a
// hard cap per event kind; the oldest events are evicted beyond it.
type TelemetryConfig struct {
	MaxEvents      int           `yaml:"max_events" envconfig:"MAX_EVENTS" default:"10000"`
	RetentionDays  int           `yaml:"retention_days" envconfig:"RETENTION_DAYS" default:"90"`
	DefaultLicense time.Duration `yaml:"default_license" envconfig:"DEFAULT_LICENSE" default:"8760h"`
}

// SMTPConfig contains optional credentials for licensee notification email.
// Leaving Host empty disables notification entirely.
type SMTPConfig struct {
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT" default:"587"`
	User     string `yaml:"user" envconfig:"USER"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	From     string `yaml:"from" envconfig:"FROM"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/license-server.log"`
}

// Load loads configuration from environment variables and an optional
// config file. Environment takes precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("LICENSEGATE", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := findConfigFile(); configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = merge(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// merge combines file config with env config (env takes precedence)
func merge(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Admin.Key == "" {
		envCfg.Admin.Key = fileCfg.Admin.Key
	}
	if envCfg.Storage.Driver == "" {
		envCfg.Storage.Driver = fileCfg.Storage.Driver
	}
	if envCfg.Storage.Path == "" {
		envCfg.Storage.Path = fileCfg.Storage.Path
	}
	if envCfg.SMTP.Host == "" {
		envCfg.SMTP = fileCfg.SMTP
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging = fileCfg.Logging
	}
	return envCfg
}

// validate validates the configuration. The admin key is the only hard
// requirement; everything else has usable defaults.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Admin.Key == "" {
		return fmt.Errorf("admin key must be configured (LICENSEGATE_ADMIN_KEY)")
	}
	if len(c.Admin.Key) < 16 {
		return fmt.Errorf("admin key must be at least 16 characters")
	}

	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	if c.Telemetry.MaxEvents <= 0 {
		return fmt.Errorf("telemetry max events must be positive")
	}

	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	return nil
}

// findConfigFile returns the path to the config file, if any
func findConfigFile() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration suitable for local development
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			Key: "local-dev-admin-key-not-for-production",
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Telemetry: TelemetryConfig{
			MaxEvents:      10000,
			RetentionDays:  90,
			DefaultLicense: 365 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}
