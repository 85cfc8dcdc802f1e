// Package server exposes dashboards, metric values and calculation runs
// over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/callwatch/internal/access"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
	"github.com/blackwell-systems/callwatch/internal/dashboard"
	"github.com/blackwell-systems/callwatch/internal/processor"
	"github.com/blackwell-systems/callwatch/internal/store"
)

// actorHeader names the caller for authorization.
const actorHeader = "X-Actor"

// Store is the read side of the metrics store the API needs.
type Store interface {
	Ping() error
	GetByEvent(ctx context.Context, eventID int64) ([]catalogue.MetricValue, error)
	GetStatistics(ctx context.Context, code, version string, from, to time.Time) (store.Statistics, error)
	LabelDistribution(ctx context.Context, code, version string, from, to time.Time) ([]store.LabelCount, error)
}

// Options wires a Server.
type Options struct {
	Registry   *catalogue.Registry
	Store      Store
	Dashboards *dashboard.Service
	Processor  *processor.Processor
	Authorizer access.Authorizer

	// Version and Profile are used when a run request names neither.
	Version   string
	Profile   string
	BatchSize int
	// Location interprets date-only query parameters.
	Location       *time.Location
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server is the HTTP API.
type Server struct {
	opts   Options
	logger zerolog.Logger
	router chi.Router
}

// New builds the router. A nil Authorizer allows everything.
func New(opts Options) *Server {
	if opts.Authorizer == nil {
		opts.Authorizer = access.AllowAll{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Version == "" {
		opts.Version = catalogue.DefaultVersionTag
	}
	if opts.Profile == "" {
		opts.Profile = catalogue.SelectorShift
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	s := &Server{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(opts.AllowedOrigins))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/dashboards/{subject}", s.getDashboard)
		r.Post("/dashboards/invalidate", s.invalidateDashboards)
		r.Get("/calls/{id}/metrics", s.getCallMetrics)
		r.Get("/statistics/{code}", s.getStatistics)
		r.Post("/runs/incremental", s.runIncremental)
		r.Post("/runs/backfill", s.runBackfill)
	})

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("server stopped")
	return nil
}
