package cmd

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/replysmith/replysmith/internal/captcha"
	"github.com/replysmith/replysmith/internal/config"
	"github.com/replysmith/replysmith/internal/core/engine"
	"github.com/replysmith/replysmith/internal/core/store"
	errwrap "github.com/replysmith/replysmith/internal/errors"
	"github.com/replysmith/replysmith/internal/llm/driver/groq"
	"github.com/replysmith/replysmith/internal/observability"
	"github.com/replysmith/replysmith/internal/reply"
	"github.com/replysmith/replysmith/internal/server"
	"github.com/replysmith/replysmith/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

const janitorInterval = time.Hour

// usageStoreHealthChecker verifies the usage store backend is reachable.
type usageStoreHealthChecker struct {
	redis *store.RedisStore
}

func (c usageStoreHealthChecker) CheckHealth(ctx context.Context) error {
	if c.redis != nil {
		return c.redis.Ping(ctx)
	}
	// Memory store has no failure mode worth probing
	return nil
}

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// credentialsHealthChecker reports a missing upstream API key. The server
// still runs without one (requests answer 500), but readiness should show it.
type credentialsHealthChecker struct{}

func (credentialsHealthChecker) CheckHealth(ctx context.Context) error {
	cfg := config.GetConfig()
	if cfg == nil || strings.TrimSpace(cfg.Upstream.APIKey) == "" {
		return errwrap.NewConfigMissingError("upstream API key not configured")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Config reload (limits and credentials re-read)

The server will cleanly shut down the HTTP server and flush logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "config load failed")
		}

		observability.InitServerLogger(appName, cfg.Logging.Level)

		if cfg.Metrics.Enabled {
			metricsPort := cfg.Metrics.Port
			if metricsPort == 0 {
				metricsPort = 9090
			}
			if err := observability.InitMetrics(appName, metricsPort); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
			}
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", appName),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("usage_store", cfg.Limits.Store),
			zap.Int("daily_cap", cfg.Limits.DailyCap),
			zap.Int("per_minute_cap", cfg.Limits.PerMinuteCap),
			zap.Bool("captcha_enabled", cfg.Captcha.Enabled()))

		if strings.TrimSpace(cfg.Upstream.APIKey) == "" {
			observability.ServerLogger.Warn("No upstream API key configured; generate requests will fail until one is set")
		}
		if !cfg.Captcha.Enabled() {
			observability.ServerLogger.Warn("CAPTCHA verification disabled (no secret configured)")
		}

		// Usage store
		var usageStore engine.UsageStore
		var redisStore *store.RedisStore
		switch cfg.Limits.Store {
		case "redis":
			client := goredis.NewClient(&goredis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			redisStore = store.NewRedisStore(client)
			usageStore = redisStore
		default:
			mem := store.NewMemoryStore()
			mem.StartJanitor(cmd.Context(), janitorInterval)
			usageStore = mem
		}

		tracker := engine.NewTracker(usageStore, cfg.Limits.CoreLimits())

		// CAPTCHA verifier
		verifier := captcha.NewVerifier(cfg.Captcha.Secret)
		if cfg.Captcha.VerifyURL != "" {
			verifier.VerifyURL = cfg.Captcha.VerifyURL
		}
		if cfg.Captcha.Timeout > 0 {
			verifier.Timeout = cfg.Captcha.Timeout
		}

		// Upstream driver and reply service
		client := groq.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey)
		client.Timeout = cfg.Upstream.Timeout

		service := reply.NewService(client, cfg.Upstream.Model, cfg.Upstream.Temperature)
		if rps := cfg.Upstream.RequestsPerSecond; rps > 0 {
			service.Pacer = rate.NewLimiter(rate.Limit(rps), 1)
		}

		// Health manager
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("usage_store", usageStoreHealthChecker{redis: redisStore})
		hm.RegisterChecker("upstream_credentials", credentialsHealthChecker{})
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		generate := &handlers.GenerateHandler{
			Tracker:  tracker,
			Verifier: verifier,
			Service:  service,
			CredentialsOK: func() bool {
				current := config.GetConfig()
				return current != nil && strings.TrimSpace(current.Upstream.APIKey) != ""
			},
			ReviewMaxChars: cfg.Limits.ReviewMaxChars,
		}

		srv := server.New(cfg.Server, server.Options{
			Generate:        generate,
			Usage:           usageStore,
			AdminToken:      cfg.Admin.Token,
			TrustedIPHeader: cfg.Limits.TrustedIPHeader,
			HealthEnabled:   cfg.Health.Enabled,
			MetricsEnabled:  cfg.Metrics.Enabled,
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Graceful shutdown handlers run LIFO: server drain first, log flush last
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		// SIGHUP reloads the config file and re-decodes the typed config so
		// credential checks pick up changes. Limits wired into the tracker
		// need a restart.
		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			if err := viper.ReadInConfig(); err != nil {
				if _, ok := err.(viper.ConfigFileNotFoundError); ok {
					observability.ServerLogger.Info("No config file found - using defaults and environment variables")
				} else {
					observability.ServerLogger.Error("Failed to reload config file",
						zap.String("file", viper.ConfigFileUsed()),
						zap.Error(err))
					return errwrap.WrapInternal(ctx, err, "config reload failed")
				}
			}

			if _, err := config.Load(viper.GetViper()); err != nil {
				observability.ServerLogger.Error("Failed to re-decode config", zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "config reload failed")
			}

			observability.ServerLogger.Info("Configuration reloaded successfully",
				zap.String("file", viper.ConfigFileUsed()))
			return nil
		})

		// Double-tap force quit (Ctrl+C within 2 seconds)
		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(cmd.Context()); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			return errwrap.WrapInternal(cmd.Context(), err, "server error")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "0.0.0.0", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}
