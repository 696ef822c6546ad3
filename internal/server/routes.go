package server

import (
	"go.uber.org/zap"

	"github.com/replysmith/replysmith/internal/observability"
	"github.com/replysmith/replysmith/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	// The one product endpoint. Mounting only POST lets the router's
	// MethodNotAllowed hook answer every other verb with 405.
	if s.opts.Generate != nil {
		s.router.Post("/api/generate", s.opts.Generate.ServeHTTP)
	}

	if s.opts.HealthEnabled {
		s.router.Get("/health", handlers.HealthHandler)
		s.router.Get("/health/live", handlers.LivenessHandler)
		s.router.Get("/health/ready", handlers.ReadinessHandler)
		s.router.Get("/health/startup", handlers.StartupHandler)
	}

	s.router.Get("/version", handlers.VersionHandler)

	if s.opts.MetricsEnabled {
		// Proxied so callers can scrape /metrics on the main port
		s.router.Get("/metrics", MetricsHandler)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin usage endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin usage endpoint disabled (no admin token configured)")
		}
		return
	}
	if s.opts.Usage == nil {
		if logger != nil {
			logger.Warn("Admin token configured but no usage store wired; admin endpoint disabled")
		}
		return
	}

	handler := &handlers.UsageHandler{
		Store: s.opts.Usage,
		Token: s.opts.AdminToken,
	}
	s.router.Get("/admin/usage", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin usage endpoint enabled",
			zap.String("path", "/admin/usage"),
			zap.String("auth", "bearer token"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
