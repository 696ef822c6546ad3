// Package server wires the chi router, middleware stack, and route handlers
// into an http.Server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/replysmith/replysmith/internal/config"
	"github.com/replysmith/replysmith/internal/core/engine"
	apperrors "github.com/replysmith/replysmith/internal/errors"
	"github.com/replysmith/replysmith/internal/observability"
	"github.com/replysmith/replysmith/internal/server/handlers"
	servermw "github.com/replysmith/replysmith/internal/server/middleware"
)

// Options carries the wired application components into the server.
type Options struct {
	// Generate is the POST /api/generate handler.
	Generate http.Handler

	// Usage backs the optional admin listing endpoint.
	Usage engine.UsageStore

	// AdminToken gates /admin/usage. Empty disables the endpoint.
	AdminToken string

	// TrustedIPHeader overrides the platform header consulted for client
	// address resolution.
	TrustedIPHeader string

	// HealthEnabled and MetricsEnabled toggle the operational surfaces.
	HealthEnabled  bool
	MetricsEnabled bool
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	opts   Options
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, opts Options) *Server {
	r := chi.NewRouter()

	// Middleware order: RequestID first for correlation, then client IP
	// resolution, then metrics so it measures everything, recovery outermost
	// for the handlers below it.
	r.Use(servermw.RequestID)
	r.Use(servermw.ClientIP(opts.TrustedIPHeader))
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("Use POST"))
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		opts:   opts,
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDuration(s.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout: orDuration(s.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:  orDuration(s.cfg.IdleTimeout, 120*time.Second),
	}

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDuration(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
