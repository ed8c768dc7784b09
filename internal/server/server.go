package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/ringflow/internal/config"
	"github.com/me/ringflow/internal/scheduler"
	"github.com/me/ringflow/internal/store"
	"github.com/me/ringflow/internal/topology"
)

// Server is the RingFlow REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	scheduler scheduler.Scheduler
	ring      *topology.Ring
	policy    topology.Policy
	upstream  string // release authority in use, reported by /health
}

// Option configures optional Server settings.
type Option func(*Server)

// WithUpstreamMode names the release authority reported by /health.
func WithUpstreamMode(mode string) Option {
	return func(s *Server) {
		s.upstream = mode
	}
}

// WithPolicy sets the default direction policy of /topology/path.
func WithPolicy(p topology.Policy) Option {
	return func(s *Server) {
		s.policy = p
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st store.Store, sched scheduler.Scheduler, ring *topology.Ring, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		scheduler: sched,
		ring:      ring,
		upstream:  "allow-all",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(tracingMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Instructions
		r.Route("/instructions", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Delete("/", s.handleClear)
			r.Post("/batch", s.handleSubmitBatch)
			r.Get("/waiting", s.handleListWaiting)
			r.Get("/schedule", s.handleSchedule)
			r.Delete("/{code}", s.handleCancel)
		})

		// Completion feedback
		r.Post("/status", s.handleStatus)

		// Diagnostics
		r.Get("/topology/path", s.handlePath)
		r.Get("/stats", s.handleStats)
	})
}
