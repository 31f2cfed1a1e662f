// Package server is the transport shell around one Controller: a chi REST
// surface plus a WebSocket endpoint. The shell serializes every tick into
// the pipeline and rate-limits callers; the pipeline itself stays
// single-threaded.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/aristath/warden/internal/controller"
)

// Config holds server configuration.
type Config struct {
	Port int
	// APIKey, when set, gates every mutating route behind a bearer token.
	APIKey string
	// AllowedOrigin is matched against WebSocket and CORS origins.
	// Empty allows any origin.
	AllowedOrigin string
	DevMode       bool

	// GlobalTicksPerSecond caps ticks across all transports (default 20).
	GlobalTicksPerSecond float64
	// ConnTicksPerSecond caps ticks per WebSocket connection (default 10).
	ConnTicksPerSecond float64
}

// Server is the HTTP/WebSocket front of the regulator.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config

	ctrl *controller.Controller

	// tickSem serializes processTick across HTTP and WebSocket callers.
	tickSem     *semaphore.Weighted
	globalTicks *tokenBucket
}

// New creates a server around the controller.
func New(cfg Config, ctrl *controller.Controller, log zerolog.Logger) *Server {
	if cfg.Port <= 0 {
		cfg.Port = 8787
	}
	if cfg.GlobalTicksPerSecond <= 0 {
		cfg.GlobalTicksPerSecond = 20
	}
	if cfg.ConnTicksPerSecond <= 0 {
		cfg.ConnTicksPerSecond = 10
	}

	s := &Server{
		router:      chi.NewRouter(),
		log:         log.With().Str("component", "server").Logger(),
		cfg:         cfg,
		ctrl:        ctrl,
		tickSem:     semaphore.NewWeighted(1),
		globalTicks: newTokenBucket(cfg.GlobalTicksPerSecond, cfg.GlobalTicksPerSecond),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	origins := []string{"*"}
	if s.cfg.AllowedOrigin != "" {
		origins = []string{s.cfg.AllowedOrigin}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/tick", s.handleTick)
		r.Post("/diagnose", s.handleDiagnose)
		r.Post("/config", s.handleConfig)
		r.Post("/approve", s.handleApprove)
		r.Post("/reject", s.handleReject)
	})

	s.router.Get("/decisions", s.handleDecisions)
	s.router.Get("/metrics", s.handleMetrics)
	s.router.Get("/principles", s.handlePrinciples)
	s.router.Get("/pending", s.handlePending)
	s.router.Get("/system", s.handleSystem)
}

// Start runs the listener until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests and embedding hosts.
func (s *Server) Router() http.Handler { return s.router }

// authMiddleware enforces the bearer token on mutating routes when an API
// key is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if header == token || token != s.cfg.APIKey {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// runTick pushes one tick through the serialized pipeline. The semaphore
// keeps HTTP and WebSocket callers from interleaving controller state.
func (s *Server) runTick(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.tickSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.tickSem.Release(1)
	return fn(ctx)
}
