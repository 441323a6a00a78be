// Package server exposes the desk over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/escrowdesk/internal/domain"
	"github.com/alanyoungcy/escrowdesk/internal/server/handler"
	"github.com/alanyoungcy/escrowdesk/internal/server/middleware"
	"github.com/alanyoungcy/escrowdesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string             // if empty, authentication is disabled
	Limiter         domain.RateLimiter // nil disables HTTP-level rate limiting
	RateLimitPerMin int                // per-client-IP requests per minute; 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Orders   *handler.OrderHandler
	Custody  *handler.CustodyHandler
	Archives *handler.ArchiveHandler // nil when blob storage is not configured
}

// Server is the HTTP + WebSocket API server for the escrow desk.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{asset}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{asset}/fund", handlers.Markets.FundPool)
	mux.HandleFunc("GET /api/markets/{asset}/pool", handlers.Markets.GetPool)

	// Order endpoints.
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("POST /api/orders", handlers.Orders.CreateOrder)
	mux.HandleFunc("GET /api/orders/{asset}/{id}", handlers.Orders.GetOrder)
	mux.HandleFunc("POST /api/orders/{asset}/{id}/fill", handlers.Orders.FillOrder)
	mux.HandleFunc("DELETE /api/orders/{asset}/{id}", handlers.Orders.CancelOrder)
	mux.HandleFunc("GET /api/orders/{asset}/{id}/fills", handlers.Orders.ListFills)

	// Custody endpoints.
	mux.HandleFunc("POST /api/custody/deposit", handlers.Custody.Deposit)
	mux.HandleFunc("GET /api/custody/{account}/balance", handlers.Custody.GetBalance)

	// Archive endpoints (only when blob storage is configured).
	if handlers.Archives != nil {
		mux.HandleFunc("GET /api/archives", handlers.Archives.ListArchives)
		mux.HandleFunc("GET /api/archives/{path...}", handlers.Archives.DownloadArchive)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain. Requests traverse CORS, logging, the
	// per-IP rate limit, then auth. The health probe bypasses both the
	// limiter and auth; the WebSocket upgrade bypasses the limiter because
	// one long-lived connection is not request volume.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey, "/api/health")(h)

	if cfg.Limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.Limiter, cfg.RateLimitPerMin, time.Minute,
			"/api/health", "/ws")(h)
	}

	h = middleware.Logging(logger)(h)

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
