package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/thushan/llamatap/internal/core/domain"
)

const (
	DefaultPort = 40114
	DefaultHost = "localhost"

	EnvPrefix     = "LLAMATAP"
	EnvConfigFile = "LLAMATAP_CONFIG_FILE"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streams can run for minutes
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  5 * time.Minute, // idle limit, reset on every write
			MaxBodySize:     "50MiB",
			RequestLogging:  true,
		},
		Proxy: ProxyConfig{
			UpstreamTimeout:   5 * time.Minute,
			ConnectionTimeout: 30 * time.Second,
			StreamBufferSize:  8 * 1024,
			CaptureLimit:      "1MiB",
		},
		Providers: ProvidersConfig{
			ProvidersFile: "providers.json",
			CertsFile:     "certs.json",
			Watch:         true,
		},
		Tokens: TokensConfig{
			EncoderCacheSize: 16,
			MaxConcurrent:    8,
		},
		Cache: CacheConfig{
			Capacity:      1000,
			TTL:           5 * time.Minute,
			SweepInterval: time.Minute,
		},
		Audit: AuditConfig{
			File:           "logs/audit.log",
			MaxSize:        5,
			PendingTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "./logs",
			Theme:      "default",
			FileOutput: true,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Load reads .env, then config.yaml (or LLAMATAP_CONFIG_FILE), then LLAMATAP_* overrides
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}
	return LoadWith(viper.New())
}

// LoadWith uses the supplied viper instance, tests pass a fresh one
func LoadWith(v *viper.Viper) (*Config, error) {
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	} else if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Filename = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from the file
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_body_size", c.Server.MaxBodySize)
	v.SetDefault("server.request_logging", c.Server.RequestLogging)
	v.SetDefault("server.trust_proxy_headers", c.Server.TrustProxy)

	v.SetDefault("proxy.upstream_timeout", c.Proxy.UpstreamTimeout)
	v.SetDefault("proxy.connection_timeout", c.Proxy.ConnectionTimeout)
	v.SetDefault("proxy.stream_buffer_size", c.Proxy.StreamBufferSize)
	v.SetDefault("proxy.capture_limit", c.Proxy.CaptureLimit)

	v.SetDefault("providers.providers_file", c.Providers.ProvidersFile)
	v.SetDefault("providers.certs_file", c.Providers.CertsFile)
	v.SetDefault("providers.watch", c.Providers.Watch)

	v.SetDefault("tokens.encoder_cache_size", c.Tokens.EncoderCacheSize)
	v.SetDefault("tokens.fallback_encoding", c.Tokens.FallbackEncoding)
	v.SetDefault("tokens.max_concurrent", c.Tokens.MaxConcurrent)

	v.SetDefault("cache.capacity", c.Cache.Capacity)
	v.SetDefault("cache.ttl", c.Cache.TTL)
	v.SetDefault("cache.sweep_interval", c.Cache.SweepInterval)

	v.SetDefault("audit.file", c.Audit.File)
	v.SetDefault("audit.max_size", c.Audit.MaxSize)
	v.SetDefault("audit.max_backups", c.Audit.MaxBackups)
	v.SetDefault("audit.pending_timeout", c.Audit.PendingTimeout)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.dir", c.Logging.Dir)
	v.SetDefault("logging.theme", c.Logging.Theme)
	v.SetDefault("logging.file_output", c.Logging.FileOutput)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)

	v.SetDefault("telemetry.metrics_address", c.Telemetry.MetricsAddress)
	v.SetDefault("telemetry.profile", c.Telemetry.Profile)
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.NewConfigError("server.port", c.Server.Port, "must be between 1 and 65535")
	}
	if _, err := c.Server.MaxBodyBytes(); err != nil {
		return domain.NewConfigError("server.max_body_size", c.Server.MaxBodySize, err.Error())
	}
	if limit, err := c.Proxy.CaptureLimitBytes(); err != nil || limit <= 0 {
		return domain.NewConfigError("proxy.capture_limit", c.Proxy.CaptureLimit, "must be a positive size")
	}
	if c.Proxy.UpstreamTimeout <= 0 {
		return domain.NewConfigError("proxy.upstream_timeout", c.Proxy.UpstreamTimeout, "must be positive")
	}
	if c.Proxy.StreamBufferSize <= 0 {
		return domain.NewConfigError("proxy.stream_buffer_size", c.Proxy.StreamBufferSize, "must be positive")
	}
	if c.Providers.ProvidersFile == "" {
		return domain.NewConfigError("providers.providers_file", c.Providers.ProvidersFile, "is required")
	}
	if c.Tokens.EncoderCacheSize < 1 {
		return domain.NewConfigError("tokens.encoder_cache_size", c.Tokens.EncoderCacheSize, "must be at least 1")
	}
	if c.Tokens.MaxConcurrent < 1 {
		return domain.NewConfigError("tokens.max_concurrent", c.Tokens.MaxConcurrent, "must be at least 1")
	}
	if c.Cache.Capacity < 1 {
		return domain.NewConfigError("cache.capacity", c.Cache.Capacity, "must be at least 1")
	}
	if c.Cache.TTL <= 0 {
		return domain.NewConfigError("cache.ttl", c.Cache.TTL, "must be positive")
	}
	if c.Audit.File == "" {
		return domain.NewConfigError("audit.file", c.Audit.File, "is required")
	}
	if c.Audit.MaxSize < 1 {
		return domain.NewConfigError("audit.max_size", c.Audit.MaxSize, "must be at least 1 (MB)")
	}
	return nil
}
