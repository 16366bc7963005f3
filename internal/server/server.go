package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/backyonatan-alt/casecount/internal/cache"
	"github.com/backyonatan-alt/casecount/internal/config"
	"github.com/backyonatan-alt/casecount/internal/lookup"
	"github.com/backyonatan-alt/casecount/internal/model"
)

// Refresher is the part of the pipeline the API drives and reports on.
type Refresher interface {
	Run(ctx context.Context) (model.CycleReport, error)
	Phase() model.Phase
	LastReport() (model.CycleReport, bool)
}

// CacheStats reports artifact cache counters.
type CacheStats interface {
	Stats() cache.Stats
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	cfg       config.ServerConfig
	lookup    *lookup.Service
	refresher Refresher
	cache     CacheStats
	metrics   http.Handler
}

func New(cfg config.ServerConfig, l *lookup.Service, r Refresher, c CacheStats, metrics http.Handler) *Server {
	return &Server{cfg: cfg, lookup: l, refresher: r, cache: c, metrics: metrics}
}

// Router returns the HTTP handler with all routes registered.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/records", s.handleList)
			r.Get("/records/{query}", s.handleRecord)
			r.Get("/records/{query}/artifact", s.handleArtifact)
			r.Get("/answer/{query}", s.handleAnswer)
		})
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}
