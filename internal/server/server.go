package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/server/handler"
	"github.com/allocatorhq/compactd/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, admin-route authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Nonce   *handler.NonceHandler
	Compact *handler.CompactHandler
	Balance *handler.BalanceHandler
	Admin   *handler.AdminHandler
}

// Server is the allocator's HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with every route of SPEC_FULL.md §6 registered.
// Auth wraps only the admin routes; every request passes through
// Logging → CORS → RateLimit (RateLimit only when a limiter is given).
func NewServer(cfg Config, h Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health.HealthCheck)

	mux.HandleFunc("GET /suggested-nonce/{chainId}/{account}", h.Nonce.Suggest)

	mux.HandleFunc("POST /compact", h.Compact.Submit)
	mux.HandleFunc("GET /compacts/{account}", h.Compact.ListBySponsor)
	mux.HandleFunc("GET /compact/{chainId}/{claimHash}", h.Compact.GetByHash)
	mux.HandleFunc("POST /compact/is-allocatable", h.Compact.IsAllocatable)

	mux.HandleFunc("GET /balance/{chainId}/{lockId}/{account}", h.Balance.GetOne)
	mux.HandleFunc("GET /balances/{account}", h.Balance.GetAll)

	// Admin routes require API-key/bearer auth even when the rest of the
	// surface is unauthenticated; Auth is applied only to these routes.
	mux.Handle("POST /admin/refresh-chains", middleware.Auth(cfg.APIKey)(http.HandlerFunc(h.Admin.RefreshChains)))
	mux.Handle("GET /admin/archives", middleware.Auth(cfg.APIKey)(http.HandlerFunc(h.Admin.ListArchives)))

	var handler http.Handler = mux
	if limiter != nil {
		handler = middleware.RateLimit(limiter, 100, time.Minute)(handler)
	}
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = middleware.Logging(logger)(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, mux: mux, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
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
				allowed := len(allowedOrigins) == 0 // allow all if none specified
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
