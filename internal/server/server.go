// Package server provides the optional results API: a read-only HTTP view
// over a finished run, plus a system health endpoint. It never participates
// in the run itself.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/quantsmith/backcast/internal/backtest"
	"github.com/quantsmith/backcast/internal/domain"
)

// Config holds the results server configuration.
type Config struct {
	Log     zerolog.Logger
	Port    int
	Summary *backtest.Summary
	Rows    []domain.DailyRow
}

// Server serves a completed run's summary and daily rows.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
}

// New creates the results server and mounts its routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	h := newHandlers(cfg.Summary, cfg.Rows, s.log)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/summary", h.summary)
		r.Get("/daily", h.daily)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting results server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down results server")
	return s.server.Shutdown(ctx)
}
