package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flowpbx/voiceswitch/internal/api/middleware"
	"github.com/flowpbx/voiceswitch/internal/config"
	"github.com/flowpbx/voiceswitch/internal/console"
	"github.com/flowpbx/voiceswitch/internal/database"
	"github.com/flowpbx/voiceswitch/internal/transport"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router    *chi.Mux
	cfg       *config.Config
	db        *database.DB
	directory database.DirectoryRepository
	settings  database.SettingsRepository
	consoles  *console.Manager
	hub       *transport.Hub
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
	startTime time.Time

	adminLimiter  *middleware.IPRateLimiter
	keypadLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted. gatherer may
// be nil, in which case /metrics is not served.
func NewServer(cfg *config.Config, db *database.DB, consoles *console.Manager, hub *transport.Hub, gatherer prometheus.Gatherer, logger *slog.Logger) (*Server, error) {
	settings, err := database.NewSettingsRepository(context.Background(), db)
	if err != nil {
		return nil, fmt.Errorf("creating settings repository: %w", err)
	}

	s := &Server{
		router:        chi.NewRouter(),
		cfg:           cfg,
		db:            db,
		directory:     database.NewDirectoryRepository(db),
		settings:      settings,
		consoles:      consoles,
		hub:           hub,
		gatherer:      gatherer,
		logger:        logger.With("subsystem", "api"),
		startTime:     time.Now(),
		adminLimiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig(), logger),
		keypadLimiter: middleware.NewIPRateLimiter(middleware.KeypadRateLimitConfig(), logger),
	}

	s.routes(logger)
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.adminLimiter.Stop()
	s.keypadLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes(logger *slog.Logger) {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.SecurityHeaders(s.cfg.TLSEnabled()))
	r.Use(middleware.CORS(s.cfg.AllowedOrigins()))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Administrative routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.adminLimiter))

			r.Get("/directory", s.handleGetDirectory)
			r.Put("/directory", s.handlePutDirectory)
			r.Get("/directory/positions/{callsign}", s.handleGetPosition)
			r.Get("/directory/positions/{callsign}/dial-codes/{trunk}/{code}", s.handleResolveDialCode)

			r.Get("/consoles", s.handleListConsoles)
			r.Post("/consoles", s.handleCreateConsole)
			r.Get("/consoles/{id}", s.handleGetConsole)
			r.Delete("/consoles/{id}", s.handleDeleteConsole)
			r.Post("/consoles/{id}/session", s.handleOpenSession)
			r.Delete("/consoles/{id}/session", s.handleCloseSession)
			r.Post("/consoles/{id}/identity", s.handleIdentify)
		})

		// Keypad and transport status input.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.keypadLimiter))

			r.Post("/consoles/{id}/trunk", s.handleSelectTrunk)
			r.Post("/consoles/{id}/digit", s.handleDigit)
			r.Post("/consoles/{id}/backspace", s.handleBackspace)
			r.Post("/consoles/{id}/clear", s.handleClear)
			r.Post("/consoles/{id}/call", s.handleCall)
			r.Post("/consoles/{id}/hangup", s.handleHangup)
			r.Post("/consoles/{id}/retry", s.handleRetry)
			r.Post("/consoles/{id}/status", s.handleStatus)
		})

		// Long-lived transport connection; not rate limited.
		r.Get("/consoles/{id}/ws", s.handleConsoleWS)
	})

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.logger.Info("api routes mounted")
}
