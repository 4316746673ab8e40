// Package web serves the REST API, the Steam login round trip and the
// WebSocket channel browsers use to drive syncs.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-overachiever/internal/auth"
	"github.com/justestif/go-overachiever/internal/logging"
	"github.com/justestif/go-overachiever/internal/sync"
)

const (
	// DefaultAddr is the default server address.
	DefaultAddr = "0.0.0.0:8080"

	// DefaultLogLimit is how many log entries History returns.
	DefaultLogLimit = 50

	apiRequestsPerMinute = 120
	shutdownTimeout      = 10 * time.Second
)

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr  string
	Store Store
	Sync  *sync.Service
	// Source is the Steam client used for server-side syncs. Nil when no API
	// key is configured; syncs then fail with sync.ErrNotConfigured.
	Source         sync.Source
	JWT            *auth.JWTManager
	OpenID         *auth.Authenticator
	LogLimit       int
	AllowedOrigins []string
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	hub      *Hub
	store    Store
	sync     *sync.Service
	source   sync.Source
	jwt      *auth.JWTManager
	openID   *auth.Authenticator
	logLimit int

	// baseCtx parents every WebSocket connection; Run cancels it on shutdown.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("web: store is required")
	}
	if cfg.Sync == nil {
		return nil, errors.New("web: sync service is required")
	}
	if cfg.JWT == nil {
		return nil, errors.New("web: JWT manager is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.LogLimit <= 0 {
		cfg.LogLimit = DefaultLogLimit
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:     chi.NewRouter(),
		hub:        NewHub(),
		store:      cfg.Store,
		sync:       cfg.Sync,
		source:     cfg.Source,
		jwt:        cfg.JWT,
		openID:     cfg.OpenID,
		logLimit:   cfg.LogLimit,
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware for the router.
func (s *Server) setupMiddleware(origins []string) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

// setupRoutes configures routes for the application.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Get("/auth/steam", s.handleSteamLogin)
	s.router.Get("/auth/steam/callback", s.handleSteamCallback)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(apiRequestsPerMinute, time.Minute))
		r.Use(middleware.NoCache)

		r.Get("/community/ratings/{appid}", s.handleGetRatings)
		r.Get("/community/tips/{appid}/{apiname}", s.handleGetTips)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Get("/games", s.handleGetGames)
			r.Get("/games/{appid}/achievements", s.handleGetAchievements)
			r.Get("/history", s.handleGetHistory)
			r.Post("/community/ratings", s.handleSubmitRating)
			r.Post("/community/tips", s.handleSubmitTip)
		})
	})
}

// Run serves HTTP and the WebSocket hub until ctx is done, then shuts both
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.hub.Run(s.baseCtx)
	})

	g.Go(func() error {
		logging.Info().Str("addr", s.server.Addr).Msg("starting server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logging.Info().Msg("shutting down server")
		s.cancelBase()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("graceful shutdown failed")
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	logging.Info().Msg("server stopped")
	return err
}
