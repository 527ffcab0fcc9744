// Package server exposes sessions, events and annotations over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"econ-clock/internal/clock"
	"econ-clock/internal/eventcache"
	"econ-clock/internal/observability"
	"econ-clock/internal/orchestrator"
	"econ-clock/internal/storage"
)

// SessionController is the part of orchestrator.Session the API drives.
type SessionController interface {
	ID() string
	Latest() (orchestrator.Snapshot, bool)
	Settings() orchestrator.Settings
	Apply(orchestrator.Settings) error
	Notify()
}

// Config holds server configuration
type Config struct {
	Addr        string
	Log         zerolog.Logger
	Session     SessionController
	Events      eventcache.Querier
	Annotations storage.AnnotationStore
	Feeds       storage.FeedStateStore // optional
	Clock       clock.Clock
	DevMode     bool
}

// Server represents the HTTP server
type Server struct {
	router      *chi.Mux
	server      *http.Server
	log         zerolog.Logger
	session     SessionController
	events      eventcache.Querier
	annotations storage.AnnotationStore
	feeds       storage.FeedStateStore
	now         clock.Clock
	started     time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		session:     cfg.Session,
		events:      cfg.Events,
		annotations: cfg.Annotations,
		feeds:       cfg.Feeds,
		now:         cfg.Clock,
		started:     time.Now(),
	}
	if s.now == nil {
		s.now = clock.System
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", observability.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/events", s.handleEvents)

		r.Get("/session", s.handleGetSession)
		r.Put("/session", s.handlePutSession)

		r.Get("/annotations", s.handleListAnnotations)
		r.Put("/favorites/{key}", s.handleFavorite(true))
		r.Delete("/favorites/{key}", s.handleFavorite(false))
		r.Put("/notes/{key}", s.handlePutNote)
		r.Delete("/notes/{key}", s.handleDeleteNote)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
