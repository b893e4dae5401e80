package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/docker/go-units"
)

// Config holds all configuration for the application
type Config struct {
	Filename  string          `mapstructure:"-" yaml:"-"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Proxy     ProxyConfig     `mapstructure:"proxy" yaml:"proxy"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Tokens    TokensConfig    `mapstructure:"tokens" yaml:"tokens"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	MaxBodySize     string        `mapstructure:"max_body_size" yaml:"max_body_size"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	RequestLogging  bool          `mapstructure:"request_logging" yaml:"request_logging"`
	TrustProxy      bool          `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MaxBodyBytes parses the human size, 0 means unlimited
func (s *ServerConfig) MaxBodyBytes() (int64, error) {
	return parseSize(s.MaxBodySize)
}

// ProxyConfig holds upstream-facing settings
type ProxyConfig struct {
	CaptureLimit      string        `mapstructure:"capture_limit" yaml:"capture_limit"`
	UpstreamTimeout   time.Duration `mapstructure:"upstream_timeout" yaml:"upstream_timeout"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout"`
	StreamBufferSize  int           `mapstructure:"stream_buffer_size" yaml:"stream_buffer_size"`
}

func (p *ProxyConfig) CaptureLimitBytes() (int64, error) {
	return parseSize(p.CaptureLimit)
}

type ProvidersConfig struct {
	ProvidersFile string `mapstructure:"providers_file" yaml:"providers_file"`
	CertsFile     string `mapstructure:"certs_file" yaml:"certs_file"`
	Watch         bool   `mapstructure:"watch" yaml:"watch"`
}

type TokensConfig struct {
	FallbackEncoding string `mapstructure:"fallback_encoding" yaml:"fallback_encoding"`
	EncoderCacheSize int    `mapstructure:"encoder_cache_size" yaml:"encoder_cache_size"`
	MaxConcurrent    int    `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

type CacheConfig struct {
	Capacity      int           `mapstructure:"capacity" yaml:"capacity"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

type AuditConfig struct {
	File           string        `mapstructure:"file" yaml:"file"`
	MaxSize        int           `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups     int           `mapstructure:"max_backups" yaml:"max_backups"`
	PendingTimeout time.Duration `mapstructure:"pending_timeout" yaml:"pending_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Dir        string `mapstructure:"dir" yaml:"dir"`
	Theme      string `mapstructure:"theme" yaml:"theme"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	FileOutput bool   `mapstructure:"file_output" yaml:"file_output"`
}

// TelemetryConfig controls the side listener; an empty address disables it
type TelemetryConfig struct {
	MetricsAddress string `mapstructure:"metrics_address" yaml:"metrics_address"`
	Profile        bool   `mapstructure:"profile" yaml:"profile"`
}

func parseSize(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}
