// SPDX-License-Identifier: MIT

// Package api exposes the pipeline over HTTP: submission, result and
// status retrieval, stats and health.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vidpipe/internal/log"
	"vidpipe/internal/pipeline"
)

// Server carries the HTTP handlers and their collaborators.
type Server struct {
	orch    *pipeline.Orchestrator
	version string
	started time.Time
	logger  zerolog.Logger

	// rateLimit caps requests per client IP per minute; 0 disables it.
	rateLimit int
}

// Option customises server construction.
type Option func(*Server)

// WithVersion sets the version string reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithRateLimit caps requests per client IP per minute.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.rateLimit = perMinute }
}

// New creates the API server around an orchestrator.
func New(orch *pipeline.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:    orch,
		version: "dev",
		started: time.Now(),
		logger:  log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with the full middleware stack.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(log.Middleware())
	if s.rateLimit > 0 {
		r.Use(httprate.Limit(
			s.rateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{
					"error": "rate limit exceeded",
				})
			}),
		))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/videos", s.handleSubmit)
		r.Post("/videos/batch", s.handleSubmitBatch)
		r.Get("/videos", s.handleListResults)
		r.Get("/videos/{id}", s.handleGetResult)
		r.Get("/videos/{id}/status", s.handleGetStatus)
		r.Get("/videos/{id}/summary", s.handleGetSummary)
		r.Get("/stats", s.handleStats)
	})
	return r
}
