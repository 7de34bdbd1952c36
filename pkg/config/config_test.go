package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, "memory", cfg.Cache.Type)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Events.WebhookURL)
	assert.True(t, cfg.Events.LogEvents)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHD_HOST", "127.0.0.1")
	t.Setenv("AUTHD_PORT", "9090")
	t.Setenv("AUTHD_READ_TIMEOUT", "5s")
	t.Setenv("AUTHD_DB_TYPE", "postgres")
	t.Setenv("AUTHD_DB_URL", "postgres://localhost/authz")
	t.Setenv("AUTHD_DB_MAX_CONNS", "50")
	t.Setenv("AUTHD_CACHE_TYPE", "redis")
	t.Setenv("AUTHD_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AUTHD_LOG_LEVEL", "debug")
	t.Setenv("AUTHD_WEBHOOK_URL", "https://hooks.example.com/authz")
	t.Setenv("AUTHD_WEBHOOK_SECRET", "s3cret")
	t.Setenv("AUTHD_LOG_EVENTS", "false")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://localhost/authz", cfg.Database.URL)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.RedisURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "https://hooks.example.com/authz", cfg.Events.WebhookURL)
	assert.Equal(t, "s3cret", cfg.Events.WebhookSecret)
	assert.False(t, cfg.Events.LogEvents)
}

func TestLoadConfig_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	yaml := `
server:
  port: "7070"
  idle_timeout: 90s
database:
  type: postgres
  url: postgres://db.internal/authz
log:
  level: warn
  format: text
events:
  webhook_url: https://hooks.example.com/authz
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("AUTHD_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://db.internal/authz", cfg.Database.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "https://hooks.example.com/authz", cfg.Events.WebhookURL)

	// Untouched fields keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Cache.Type)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: \"7070\"\n"), 0o600))
	t.Setenv("AUTHD_CONFIG_FILE", path)
	t.Setenv("AUTHD_PORT", "9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.Server.Port)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Setenv("AUTHD_CONFIG_FILE", "/does/not/exist.yaml")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing port",
			mutate:  func(c *Config) { c.Server.Port = "" },
			wantErr: "port",
		},
		{
			name:    "postgres without URL",
			mutate:  func(c *Config) { c.Database.Type = "postgres" },
			wantErr: "database URL",
		},
		{
			name:    "unknown database type",
			mutate:  func(c *Config) { c.Database.Type = "sqlite" },
			wantErr: "invalid database type",
		},
		{
			name:    "redis without URL",
			mutate:  func(c *Config) { c.Cache.Type = "redis" },
			wantErr: "redis URL",
		},
		{
			name:    "unknown cache type",
			mutate:  func(c *Config) { c.Cache.Type = "memcached" },
			wantErr: "invalid cache type",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("AUTHD_TEST_STR", "value")
	assert.Equal(t, "value", getEnv("AUTHD_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", getEnv("AUTHD_TEST_UNSET", "fallback"))

	t.Setenv("AUTHD_TEST_INT", "42")
	assert.Equal(t, 42, getEnvInt("AUTHD_TEST_INT", 7))
	t.Setenv("AUTHD_TEST_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("AUTHD_TEST_INT", 7))

	t.Setenv("AUTHD_TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("AUTHD_TEST_DUR", time.Second))
	t.Setenv("AUTHD_TEST_DUR", "garbage")
	assert.Equal(t, time.Second, getEnvDuration("AUTHD_TEST_DUR", time.Second))

	t.Setenv("AUTHD_TEST_BOOL", "true")
	assert.True(t, getEnvBool("AUTHD_TEST_BOOL", false))
	t.Setenv("AUTHD_TEST_BOOL", "0")
	assert.False(t, getEnvBool("AUTHD_TEST_BOOL", true))
}
