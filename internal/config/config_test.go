package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thushan/llamatap/internal/core/domain"
)

// chdirTemp isolates Load from any config.yaml sitting in the package directory
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Tokens.EncoderCacheSize)
	assert.Equal(t, 5, cfg.Audit.MaxSize)
	assert.Equal(t, 30*time.Second, cfg.Audit.PendingTimeout)
	assert.Empty(t, cfg.Telemetry.MetricsAddress)

	limit, err := cfg.Proxy.CaptureLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), limit)

	require.NoError(t, cfg.Validate())
}

func TestLoad_WithoutFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv(EnvConfigFile, "")

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Empty(t, cfg.Filename)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv(EnvConfigFile, "")
	t.Setenv("LLAMATAP_SERVER_PORT", "8080")
	t.Setenv("LLAMATAP_SERVER_HOST", "0.0.0.0")
	t.Setenv("LLAMATAP_PROXY_UPSTREAM_TIMEOUT", "15m")
	t.Setenv("LLAMATAP_LOGGING_LEVEL", "debug")
	t.Setenv("LLAMATAP_TELEMETRY_METRICS_ADDRESS", ":9090")

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 15*time.Minute, cfg.Proxy.UpstreamTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Telemetry.MetricsAddress)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	content := `
server:
  port: 9000
  max_body_size: 2MiB
providers:
  providers_file: /etc/llamatap/providers.yaml
cache:
  capacity: 50
  ttl: 1m
audit:
  file: /var/log/llamatap/audit.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv(EnvConfigFile, path)

	cfg, err := LoadWith(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/etc/llamatap/providers.yaml", cfg.Providers.ProvidersFile)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "/var/log/llamatap/audit.log", cfg.Audit.File)
	assert.Equal(t, path, cfg.Filename)

	size, err := cfg.Server.MaxBodyBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), size)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultHost, cfg.Server.Host)
	assert.Equal(t, 16, cfg.Tokens.EncoderCacheSize)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv(EnvConfigFile, "/does/not/exist.yaml")

	_, err := LoadWith(viper.New())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad body size", func(c *Config) { c.Server.MaxBodySize = "lots" }, "server.max_body_size"},
		{"zero capture", func(c *Config) { c.Proxy.CaptureLimit = "0" }, "proxy.capture_limit"},
		{"no providers file", func(c *Config) { c.Providers.ProvidersFile = "" }, "providers.providers_file"},
		{"no encoder cache", func(c *Config) { c.Tokens.EncoderCacheSize = 0 }, "tokens.encoder_cache_size"},
		{"no cache capacity", func(c *Config) { c.Cache.Capacity = 0 }, "cache.capacity"},
		{"no audit size", func(c *Config) { c.Audit.MaxSize = 0 }, "audit.max_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var cerr *domain.ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestServerConfig_GetAddress(t *testing.T) {
	s := ServerConfig{Host: "localhost", Port: 40114}
	assert.Equal(t, "localhost:40114", s.GetAddress())

	v6 := ServerConfig{Host: "::1", Port: 80}
	assert.Equal(t, "[::1]:80", v6.GetAddress())
}
