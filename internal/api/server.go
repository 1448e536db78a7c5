package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/challenge-designer/internal/config"
	"github.com/terra-clan/challenge-designer/internal/pipeline"
	"github.com/terra-clan/challenge-designer/internal/ratelimit"
)

// ReadinessCheck reports whether a dependency is usable
type ReadinessCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	config    config.ServerConfig
	router    *chi.Mux
	pipeline  *pipeline.Orchestrator
	limiter   ratelimit.Limiter
	providers []string
	checks    map[string]ReadinessCheck
}

// Option configures optional server dependencies
type Option func(*Server)

// WithLimiter enables per-client rate limiting on the /api routes
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithProviders sets the completion provider names reported by /health
func WithProviders(names []string) Option {
	return func(s *Server) { s.providers = names }
}

// WithReadinessCheck adds a dependency check to /ready
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, orchestrator *pipeline.Orchestrator, opts ...Option) *Server {
	s := &Server{
		config:   cfg,
		pipeline: orchestrator,
		checks:   make(map[string]ReadinessCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.MethodNotAllowed(handleMethodNotAllowed)
	r.NotFound(handleNotFound)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimitMiddleware)
		}

		r.Post("/ai-validate", s.handleValidate)
		r.Post("/ai-classify", s.handleClassify)
		r.Post("/ai-difficulty", s.handleDifficulty)
		r.Post("/ai-concretize", s.handleConcretize)
		r.Post("/ai-suggestion", s.handleSuggestion)
		r.Post("/ai-initial-action", s.handleInitialAction)
		r.Post("/ai-coach", s.handleCoach)

		r.Route("/challenge/design", func(r chi.Router) {
			r.Post("/", s.handleDesign)
			r.Get("/stream", s.handleDesignStream)
		})
	})

	s.router = r
}
