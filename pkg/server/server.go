package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/duplistack/core/internal/config"
	"github.com/duplistack/core/pkg/coordinator"
	"github.com/duplistack/core/pkg/handlers/backups"
	"github.com/duplistack/core/pkg/handlers/health"
	"github.com/duplistack/core/pkg/handlers/jobs"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/middleware"
	"github.com/duplistack/core/pkg/registry"
)

// Server exposes the run coordinator and job registry over HTTP.
type Server struct {
	router   *http.ServeMux
	httpSrv  *http.Server
	port     string
	logger   *logger.Logger
	handlers struct {
		health  *health.Handler
		jobs    *jobs.Handler
		backups *backups.Handler
	}
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, reg registry.Registry, coord *coordinator.Coordinator) *Server {
	server := &Server{
		router: http.NewServeMux(),
		port:   cfg.Server.Port,
		logger: log,
	}

	server.handlers.health = health.NewHandler(log)
	server.handlers.jobs = jobs.NewHandler(reg, log)
	server.handlers.backups = backups.NewHandler(coord, log)

	server.setupRoutes()

	server.httpSrv = &http.Server{
		Addr:    ":" + server.port,
		Handler: server.router,
	}

	return server
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", middleware.CORS(s.handlers.health.HealthCheck))

	s.router.HandleFunc("/", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintf(w, "Duplistack Backup Orchestrator - OK"); err != nil {
			http.Error(w, "Failed to write response", http.StatusInternalServerError)
		}
	}))

	// Job registry endpoints
	s.router.HandleFunc("/api/jobs", middleware.CORS(s.handlers.jobs.List))

	// Backup run endpoints
	s.router.HandleFunc("/api/backup/start", middleware.CORS(s.handlers.backups.Start))
	s.router.HandleFunc("/api/backup/cancel", middleware.CORS(s.handlers.backups.Cancel))
	s.router.HandleFunc("/api/backup/status/", middleware.CORS(s.handlers.backups.Status))
	s.router.HandleFunc("/api/backup/progress/", middleware.CORS(s.handlers.backups.Progress))
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting API server")

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
