package config

import (
	"strings"
	"time"

	"github.com/replysmith/replysmith/internal/core"
)

// Config represents the complete application configuration.
// Values come from defaults, an optional YAML file, and environment
// variables with the REPLYSMITH_ prefix.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Captcha CaptchaConfig `mapstructure:"captcha"`

	Upstream UpstreamConfig `mapstructure:"upstream"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// LimitsConfig contains the per-IP usage limits and the backing store choice.
type LimitsConfig struct {
	DailyCap        int    `mapstructure:"daily_cap"`
	PerMinuteCap    int    `mapstructure:"per_minute_cap"`
	ReviewMaxChars  int    `mapstructure:"review_max_chars"`
	TrustedIPHeader string `mapstructure:"trusted_ip_header"`

	// Store selects the usage store backend: "memory" or "redis".
	Store string `mapstructure:"store"`
}

// CoreLimits converts the configured caps into the limiter's value type.
func (l LimitsConfig) CoreLimits() core.Limits {
	return core.Limits{
		DailyCap:     l.DailyCap,
		PerMinuteCap: l.PerMinuteCap,
	}
}

// RedisConfig contains connection settings for the redis usage store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CaptchaConfig contains Turnstile verification settings. Verification is
// enforced only when a secret is configured.
type CaptchaConfig struct {
	Secret    string        `mapstructure:"secret"`
	VerifyURL string        `mapstructure:"verify_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether CAPTCHA verification is enforced.
func (c CaptchaConfig) Enabled() bool {
	return strings.TrimSpace(c.Secret) != ""
}

// UpstreamConfig contains the LLM provider settings.
type UpstreamConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`

	// Timeout bounds each provider call. Zero means no explicit timeout
	// beyond the request context.
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond paces outbound provider calls across all requests.
	// Zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AdminConfig contains settings for the admin usage endpoint. An empty token
// disables the endpoint entirely.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}
