package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds the role/permission store configuration. Type is
// "postgres" or "memory".
type DatabaseConfig struct {
	Type     string        `yaml:"type"`
	URL      string        `yaml:"url"`
	MaxConns int           `yaml:"max_conns"`
	MinConns int           `yaml:"min_conns"`
	Timeout  time.Duration `yaml:"timeout"`
}

// CacheConfig holds the permission cache configuration. Type is "redis" or
// "memory".
type CacheConfig struct {
	Type     string `yaml:"type"`
	RedisURL string `yaml:"redis_url"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EventsConfig holds the domain event sink configuration. LogEvents
// controls whether every domain event is also written to the structured
// log; turn it off when a webhook sink carries the audit trail.
type EventsConfig struct {
	WebhookURL    string `yaml:"webhook_url"`
	WebhookSecret string `yaml:"webhook_secret"`
	LogEvents     bool   `yaml:"log_events"`
}

// LoadConfig builds configuration from defaults, then an optional YAML file
// named by AUTHD_CONFIG_FILE, then AUTHD_* environment overrides.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("AUTHD_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Type:     "memory",
			MaxConns: 20,
			MinConns: 2,
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Type: "memory",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Events: EventsConfig{
			LogEvents: true,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnv("AUTHD_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("AUTHD_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("AUTHD_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("AUTHD_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("AUTHD_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("AUTHD_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.Type = getEnv("AUTHD_DB_TYPE", cfg.Database.Type)
	cfg.Database.URL = getEnv("AUTHD_DB_URL", cfg.Database.URL)
	cfg.Database.MaxConns = getEnvInt("AUTHD_DB_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvInt("AUTHD_DB_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.Timeout = getEnvDuration("AUTHD_DB_TIMEOUT", cfg.Database.Timeout)

	cfg.Cache.Type = getEnv("AUTHD_CACHE_TYPE", cfg.Cache.Type)
	cfg.Cache.RedisURL = getEnv("AUTHD_REDIS_URL", cfg.Cache.RedisURL)

	cfg.Log.Level = getEnv("AUTHD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("AUTHD_LOG_FORMAT", cfg.Log.Format)

	cfg.Events.WebhookURL = getEnv("AUTHD_WEBHOOK_URL", cfg.Events.WebhookURL)
	cfg.Events.WebhookSecret = getEnv("AUTHD_WEBHOOK_SECRET", cfg.Events.WebhookSecret)
	cfg.Events.LogEvents = getEnvBool("AUTHD_LOG_EVENTS", cfg.Events.LogEvents)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Type {
	case "memory":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid database type: %s (must be postgres or memory)", c.Database.Type)
	}

	switch c.Cache.Type {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be redis or memory)", c.Cache.Type)
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
