// Package config provides centralized configuration management. Settings
// layer as: built-in defaults, then an optional YAML config file, then
// REPLYSMITH_ environment variables. Legacy env names (GROQ_API_KEY,
// TURNSTILE_SECRET_KEY) are honored as fallbacks.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/replysmith/replysmith/internal/core"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every configuration default on the given viper
// instance. Callable from the cmd layer and from tests.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")

	v.SetDefault("limits.daily_cap", core.DefaultLimits.DailyCap)
	v.SetDefault("limits.per_minute_cap", core.DefaultLimits.PerMinuteCap)
	v.SetDefault("limits.review_max_chars", 4000)
	v.SetDefault("limits.trusted_ip_header", "X-NF-Client-Connection-IP")
	v.SetDefault("limits.store", "memory")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("captcha.secret", "")
	v.SetDefault("captcha.verify_url", "")
	v.SetDefault("captcha.timeout", 10*time.Second)

	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.model", "llama-3.1-8b-instant")
	v.SetDefault("upstream.temperature", 0.6)
	v.SetDefault("upstream.timeout", time.Duration(0))
	v.SetDefault("upstream.requests_per_second", float64(0))

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("health.enabled", true)

	v.SetDefault("admin.token", "")
}

// Load decodes the viper settings into a typed Config and validates it.
// Safe to call multiple times (config reload).
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Limits.DailyCap <= 0 {
		return fmt.Errorf("limits.daily_cap must be positive, got %d", cfg.Limits.DailyCap)
	}
	if cfg.Limits.PerMinuteCap <= 0 {
		return fmt.Errorf("limits.per_minute_cap must be positive, got %d", cfg.Limits.PerMinuteCap)
	}
	if cfg.Limits.ReviewMaxChars <= 0 {
		return fmt.Errorf("limits.review_max_chars must be positive, got %d", cfg.Limits.ReviewMaxChars)
	}

	switch cfg.Limits.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown usage store %q (want memory or redis)", cfg.Limits.Store)
	}

	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
