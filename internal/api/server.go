package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/crewgate/crewgate/internal/decision"
	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/rubric"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, evaluator *rubric.Evaluator, detector *redflag.Detector, g *gate.Gate, composer *decision.Composer, version string) *Server {
	handler := NewHandler(repo, cache, bus, evaluator, detector, g, composer, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Candidate evaluation
		r.Post("/evaluate", handler.Evaluate)

		// Decision retrieval
		r.Get("/decisions/{id}", handler.GetDecision)

		// Candidate management
		r.Post("/candidates", handler.CreateCandidate)
		r.Get("/candidates/{id}", handler.GetCandidate)
		r.Post("/candidates/{id}/service-records", handler.AddServiceRecord)
		r.Get("/candidates/{id}/service-records", handler.ListServiceRecords)

		// Template management
		r.Get("/templates", handler.ListTemplates)
		r.Get("/templates/{id}", handler.GetTemplate)
		r.Post("/templates", handler.CreateTemplate)
		r.Post("/templates/{id}/activate", handler.ActivateTemplate)
		r.Post("/templates/reload", handler.ReloadTemplates)

		// Eligibility profile management
		r.Get("/profiles", handler.ListProfiles)
		r.Get("/profiles/{key}", handler.GetProfile)
		r.Post("/profiles", handler.CreateProfile)
		r.Delete("/profiles/{key}", handler.DeleteProfile)
		r.Post("/profiles/reload", handler.ReloadProfiles)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
