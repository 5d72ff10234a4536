package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/barterloop/barterloop/internal/server/handler"
	"github.com/barterloop/barterloop/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Trades  *handler.TradeHandler
	Proofs  *handler.ProofHandler
	Trust   *handler.TrustHandler
	Objects *handler.ObjectHandler
	Audit   *handler.AuditHandler
}

// Server is the HTTP API server for the barter trade engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux
// and the middleware chain (logging, CORS, auth) wired up.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Trade lifecycle.
	mux.HandleFunc("POST /api/trades", handlers.Trades.CreateTrade)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/trades/{id}", handlers.Trades.GetTrade)
	mux.HandleFunc("POST /api/trades/{id}/propose", handlers.Trades.Propose)
	mux.HandleFunc("POST /api/trades/{id}/accept", handlers.Trades.Accept)
	mux.HandleFunc("POST /api/trades/{id}/refuse", handlers.Trades.Refuse)
	mux.HandleFunc("POST /api/trades/{id}/cancel", handlers.Trades.Cancel)
	mux.HandleFunc("POST /api/trades/{id}/secure", handlers.Trades.Secure)
	mux.HandleFunc("POST /api/trades/{id}/ship", handlers.Trades.Ship)
	mux.HandleFunc("POST /api/trades/{id}/confirm", handlers.Trades.ConfirmReceipt)
	mux.HandleFunc("POST /api/trades/{id}/dispute", handlers.Trades.Dispute)
	mux.HandleFunc("POST /api/trades/{id}/resolve", handlers.Trades.ResolveDispute)

	// Proof photos.
	mux.HandleFunc("POST /api/trades/{id}/proofs", handlers.Proofs.Upload)
	mux.HandleFunc("GET /api/trades/{id}/proofs", handlers.Proofs.ListByTrade)
	mux.HandleFunc("GET /api/trades/{id}/proofs/{proofID}", handlers.Proofs.Download)

	// Trust and risk.
	mux.HandleFunc("GET /api/users/{id}/trust", handlers.Trust.GetScore)
	mux.HandleFunc("GET /api/risk", handlers.Trust.PreviewRisk)

	// Object catalogue.
	mux.HandleFunc("GET /api/objects/{id}", handlers.Objects.GetObject)
	mux.HandleFunc("GET /api/users/{id}/objects", handlers.Objects.ListByOwner)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEvents)

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

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

// corsMiddleware returns middleware that sets CORS headers for the allowed
// origins. If no origins are specified, it defaults to allowing all origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, X-User-ID")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			// Handle preflight requests.
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
