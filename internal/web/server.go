// Package web serves the gradebook JSON API and the student store contract
// over HTTP.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/metrics"
	"github.com/JonMunkholm/gradebook/internal/web/middleware"
)

// Server is the HTTP server for the gradebook.
type Server struct {
	cfg      *config.Config
	service  *core.Service
	store    core.Persistence
	metrics  *metrics.Metrics
	validate *validator.Validate

	router *chi.Mux
	server *http.Server

	limiter       *middleware.RateLimiter
	importLimiter *middleware.RateLimiter
}

// NewServer wires the router. store is exposed under /store as the
// persistence contract and should be the same backend service writes to.
// m may be nil.
func NewServer(cfg *config.Config, service *core.Service, store core.Persistence, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		store:    store,
		metrics:  m,
		validate: newValidator(),
		router:   chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.limiter = middleware.NewRateLimiter(cfg.Rate.RequestsPerMinute, time.Minute)
		s.importLimiter = middleware.NewRateLimiter(cfg.Rate.ImportLimit, time.Minute)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(s.metrics.Middleware)
	s.router.Use(securityHeaders)
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware(s.rateLimited))
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/students", s.handleListStudents)
		r.Post("/students", s.handleCreateStudent)
		r.Delete("/students", s.handleBulkDelete)
		r.Get("/students/{id}", s.handleGetStudent)
		r.Put("/students/{id}", s.handleUpdateStudent)
		r.Delete("/students/{id}", s.handleDeleteStudent)

		r.Post("/validate", s.handleValidate)
		r.Get("/analytics", s.handleAnalytics)
		r.Post("/reload", s.handleReload)

		r.Get("/export", s.handleExport)
		r.Get("/template", s.handleTemplate)

		r.Route("/import", func(r chi.Router) {
			if s.importLimiter != nil {
				r.Use(s.importLimiter.Middleware(s.rateLimited))
			}
			r.Get("/", s.handleRecentImports)
			r.Post("/", s.handleImport)
			r.Post("/preview", s.handlePreviewImport)
			r.Get("/{importID}", s.handleImportReport)
		})
	})

	s.router.Route("/store/students", func(r chi.Router) {
		r.Use(chimw.Timeout(s.cfg.Server.RequestTimeout))

		r.Get("/", s.handleStoreList)
		r.Post("/", s.handleStoreCreate)
		r.Delete("/", s.handleStoreBulkDelete)
		r.Get("/{id}", s.handleStoreGet)
		r.Put("/{id}", s.handleStoreUpdate)
		r.Delete("/{id}", s.handleStoreDelete)
	})
}

// Start begins listening for HTTP requests. The rate limiters' eviction
// loops stop when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	for _, rl := range []*middleware.RateLimiter{s.limiter, s.importLimiter} {
		if rl != nil {
			go rl.Run(ctx)
		}
	}

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.service.Store().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"records":        len(snap.Records),
		"version":        snap.Version,
		"importsRunning": s.service.Limiter().ActiveCount(),
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	s.respondError(w, r, errRateLimited, http.StatusTooManyRequests)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Encoding errors are logged since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
