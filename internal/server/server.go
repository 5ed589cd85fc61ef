package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alanyoungcy/kalshiarb/internal/domain"
	"github.com/alanyoungcy/kalshiarb/internal/server/handler"
	"github.com/alanyoungcy/kalshiarb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimitPerMinute caps /api requests per client IP when a Limiter is
	// set. Zero disables the limit.
	RateLimitPerMinute int
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// leave their routes unregistered.
type Handlers struct {
	Health        *handler.HealthHandler
	Opportunities *handler.OpportunityHandler
	Relationships *handler.RelationshipHandler
	Books         *handler.BookHandler
	Fees          *handler.FeeHandler
	Evaluate      *handler.EvaluateHandler
	// Metrics serves the Prometheus registry at /metrics.
	Metrics http.Handler
	// Limiter backs the per-IP rate limit.
	Limiter domain.RateLimiter
}

// Server is the headless HTTP API of the opportunity engine.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered. Health and metrics
// are served without authentication.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))

	if handlers.Health != nil {
		r.Get("/api/health", handlers.Health.HealthCheck)
	}
	if handlers.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", handlers.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.APIKey))
		if handlers.Limiter != nil && cfg.RateLimitPerMinute > 0 {
			r.Use(middleware.RateLimit(handlers.Limiter, cfg.RateLimitPerMinute, time.Minute))
		}

		if h := handlers.Opportunities; h != nil {
			r.Get("/api/opportunities", h.ListRecent)
			r.Get("/api/opportunities/{id}", h.Get)
		}
		if h := handlers.Relationships; h != nil {
			r.Get("/api/relationships", h.List)
		}
		if h := handlers.Books; h != nil {
			r.Get("/api/books/{ticker}", h.Get)
		}
		if h := handlers.Fees; h != nil {
			r.Get("/api/fees/quote", h.Quote)
		}
		if h := handlers.Evaluate; h != nil {
			r.Post("/api/evaluate", h.Evaluate)
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		router:     r,
		logger:     logger,
	}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
