package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bazaarpulse/internal/domain"
	"github.com/alanyoungcy/bazaarpulse/internal/server/handler"
	"github.com/alanyoungcy/bazaarpulse/internal/server/middleware"
	"github.com/alanyoungcy/bazaarpulse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AuthToken guards the mutating endpoints. Empty disables them.
	AuthToken string
	// RateLimit caps API requests per client IP per minute. Zero disables
	// the limiter; it also stays off when no limiter is wired.
	RateLimit int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Products *handler.ProductHandler
	Results  *handler.ResultHandler
	Events   *handler.EventHandler
	Archive  *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket API for the detection engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limiting) and attaches the
// WebSocket hub. limiter may be nil when the mode runs without Redis.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check and status.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Product registry.
	mux.HandleFunc("GET /api/products", handlers.Products.ListProducts)
	mux.HandleFunc("GET /api/products/{id}", handlers.Products.GetProduct)
	mux.HandleFunc("GET /api/products/{id}/snapshot", handlers.Products.GetSnapshot)

	// Window results. The literal routes win over the {id} route.
	mux.HandleFunc("GET /api/results", handlers.Results.ListResults)
	mux.HandleFunc("GET /api/results/latest", handlers.Results.GetLatest)
	mux.HandleFunc("GET /api/results/stream", handlers.Results.StreamResults)
	mux.HandleFunc("GET /api/results/{id}", handlers.Results.GetResult)

	// Audit log.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// Archive trigger is the one mutating endpoint. It requires the auth
	// token and is not registered without one.
	if cfg.AuthToken != "" {
		mux.Handle("POST /api/archive/run",
			middleware.Auth(cfg.AuthToken)(http.HandlerFunc(handlers.Archive.TriggerArchive)))
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply per-client rate limiting when configured and a limiter exists.
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
