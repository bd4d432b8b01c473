package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/securekyc/kestrel/internal/domain"
	"github.com/securekyc/kestrel/internal/poller"
	"github.com/securekyc/kestrel/internal/triage"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, store *poller.Store, kyc KYCService, fraud FraudService, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *triage.Engine, version string) *Server {
	handler := NewHandler(store, kyc, fraud, repo, cache, bus, engine, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no session required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (session attached)
	router.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware)

		// Case list and export
		r.Get("/cases", handler.ListCases)
		r.Get("/cases/export", handler.ExportCases)

		// Dashboard aggregate
		r.Get("/dashboard", handler.Dashboard)

		// Audit trail (backend events + local action log)
		r.Get("/audit", handler.Audit)

		// Review actions
		r.Post("/cases/{id}/approve", handler.ReviewAction("approve", handler.kyc.Approve))
		r.Post("/cases/{id}/reject", handler.ReviewAction("reject", handler.kyc.Reject))
		r.Post("/cases/{id}/flag", handler.ReviewAction("flag", handler.kyc.Flag))

		// Document pipeline proxies
		r.Post("/extract/{doctype}", handler.Extract)
		r.Post("/submit", handler.Submit)
		r.Post("/analyze", handler.Analyze)
		r.Get("/uploads", handler.Uploads)

		// Triage rule management
		r.Get("/triage/rules", handler.ListTriageRules)
		r.Post("/triage/rules", handler.CreateTriageRule)
		r.Post("/triage/rules/reload", handler.ReloadTriageRules)
		r.Get("/triage/matches", handler.TriageMatchAll)
		r.Get("/triage/rules/{id}", handler.GetTriageRule)
		r.Put("/triage/rules/{id}", handler.UpdateTriageRule)
		r.Delete("/triage/rules/{id}", handler.DeleteTriageRule)
		r.Get("/triage/rules/{id}/matches", handler.TriageMatches)
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
