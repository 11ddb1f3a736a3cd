// Package web serves the reports dashboard and the reports HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/reports/internal/config"
	"github.com/JonMunkholm/reports/internal/csvexport"
	"github.com/JonMunkholm/reports/internal/metrics"
	"github.com/JonMunkholm/reports/internal/reports"
	"github.com/JonMunkholm/reports/internal/web/middleware"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Backend  reports.Backend
	Exporter *csvexport.Exporter

	// Metrics is optional.
	Metrics *metrics.Collector

	// Health is optional; it is called by /healthz.
	Health func(context.Context) error

	Logger *slog.Logger
}

// Server is the reports HTTP server.
type Server struct {
	cfg      *config.Config
	backend  reports.Backend
	exporter *csvexport.Exporter
	metrics  *metrics.Collector
	health   func(context.Context) error
	logger   *slog.Logger

	router *chi.Mux
	server *http.Server
}

// NewServer builds the router. Background work owned by the server, such as
// rate limiter cleanup, stops when ctx is done.
func NewServer(ctx context.Context, cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exporter := deps.Exporter
	if exporter == nil {
		exporter = csvexport.NewExporter(nil, csvexport.WithLogger(logger))
	}

	s := &Server{
		cfg:      cfg,
		backend:  deps.Backend,
		exporter: exporter,
		metrics:  deps.Metrics,
		health:   deps.Health,
		logger:   logger.With("component", "web"),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware(ctx)
	s.setupRoutes(ctx)
	return s
}

func (s *Server) setupMiddleware(ctx context.Context) {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))

	var rec middleware.RequestRecorder
	if s.metrics != nil {
		rec = s.metrics
	}
	s.router.Use(middleware.RequestLogger(s.logger, rec))
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))
	s.router.Use(middleware.SecurityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		limiter := middleware.NewRateLimiter(ctx, s.cfg.Rate.RequestsPerMinute, time.Minute)
		s.router.Use(limiter.Handler)
	}
}

func (s *Server) setupRoutes(ctx context.Context) {
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Security.RequireAPIKey, s.cfg.Security.APIKeys))

		r.Get("/reports", s.handleListReports)

		r.Group(func(r chi.Router) {
			if s.cfg.Rate.Enabled {
				r.Use(middleware.NewRateLimiter(ctx, s.cfg.Rate.ExportLimit, time.Minute).Handler)
			}
			r.Get("/reports/csv-data", s.handleCSVData)
			r.Get("/reports/export", s.handleExport)
		})
	})
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
