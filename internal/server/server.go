// Package server provides the HTTP server for the node manager API.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sayfpack13/TrustQuery-sub002/internal/config"
	"github.com/sayfpack13/TrustQuery-sub002/internal/handler"
	"github.com/sayfpack13/TrustQuery-sub002/internal/health"
	"github.com/sayfpack13/TrustQuery-sub002/internal/metrics"
	"github.com/sayfpack13/TrustQuery-sub002/internal/middleware"
	"go.uber.org/zap"
)

// Server represents the HTTP management server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthChecker
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         *config.Config
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthCheck *health.HealthChecker, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:      router,
		httpServer:  httpServer,
		handlers:    handlers,
		healthCheck: healthCheck,
		metrics:     m,
		logger:      logger,
		cfg:         cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}
	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.Middleware(s.metrics))
	}

	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Health check endpoints
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// API v1 routes
	v1 := s.router.PathPrefix("/v1").Subrouter()

	// Node registry and validation
	v1.HandleFunc("/nodes", s.handlers.ListNodes).Methods(http.MethodGet)
	v1.HandleFunc("/nodes", s.handlers.CreateNode).Methods(http.MethodPost)
	v1.HandleFunc("/nodes/validate", s.handlers.ValidateNode).Methods(http.MethodPost)
	v1.HandleFunc("/nodes/{name}", s.handlers.GetNode).Methods(http.MethodGet)
	v1.HandleFunc("/nodes/{name}", s.handlers.UpdateNode).Methods(http.MethodPut)
	v1.HandleFunc("/nodes/{name}", s.handlers.DeleteNode).Methods(http.MethodDelete)

	// Node lifecycle
	v1.HandleFunc("/nodes/{name}/start", s.handlers.StartNode).Methods(http.MethodPost)
	v1.HandleFunc("/nodes/{name}/stop", s.handlers.StopNode).Methods(http.MethodPost)

	// Node relocation and duplication
	v1.HandleFunc("/nodes/{name}/move", s.handlers.MoveNode).Methods(http.MethodPost)
	v1.HandleFunc("/nodes/{name}/copy", s.handlers.CopyNode).Methods(http.MethodPost)

	// Derived cluster view
	v1.HandleFunc("/clusters", s.handlers.ListClusters).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"code":1000,"message":"endpoint not found"}}`))
	})

	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		w.Write([]byte(`{"error":{"code":1000,"message":"method not allowed"}}`))
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("host", s.cfg.Server.Host),
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}
