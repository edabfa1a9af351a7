// Package server provides the HTTP API for movie recommendations and watch providers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonathan/pikflix/internal/config"
	"github.com/jonathan/pikflix/internal/logging"
	"github.com/jonathan/pikflix/internal/pipeline"
	"github.com/jonathan/pikflix/internal/server/ratelimit"
	"github.com/jonathan/pikflix/internal/types"
)

// Recommender runs recommendation requests in both delivery modes.
// *pipeline.Orchestrator implements it.
type Recommender interface {
	Recommend(ctx context.Context, query string) (*types.RecommendationResponse, error)
	Stream(ctx context.Context, query string, h pipeline.StreamHandler) error
}

// ProviderLookup answers watch provider requests. *availability.Service implements it.
type ProviderLookup interface {
	Lookup(ctx context.Context, req types.ProviderRequest) (*types.ProviderResponse, error)
}

// Deps are the services the handlers call.
type Deps struct {
	Recommender Recommender
	Providers   ProviderLookup
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	recommender     Recommender
	providers       ProviderLookup
	rateLimiter     *ratelimit.Limiter
	shutdownTimeout time.Duration
}

// New creates a new server instance
func New(cfg config.ServerConfig, rl config.RateLimitConfig, deps Deps) *Server {
	s := &Server{
		recommender:     deps.Recommender,
		providers:       deps.Providers,
		rateLimiter:     ratelimit.NewLimiter(ratelimit.FromConfig(rl)),
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(cfg.CORSOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout, // long enough for a full stream
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(withLogging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(s.withRateLimit)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/movies/recommendations", s.handleRecommend)
		r.Post("/movies/recommendations/stream", s.handleRecommendStream)
		r.Post("/providers", s.handleProviders)
		r.Post("/providers/", s.handleProviders)
	})
	return r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
// It implements suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.httpServer.Addr).Msg("server starting")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logging.Info().Msg("server stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (s *Server) String() string {
	return "http-server"
}

// Close releases background resources. Call after Serve has returned.
func (s *Server) Close() {
	s.rateLimiter.Stop()
}
