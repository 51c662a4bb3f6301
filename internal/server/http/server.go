// Package httpserver serves the read API over curated papers and collection
// statistics.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/training-evidence-curator/internal/domain"
	"github.com/helixir/training-evidence-curator/internal/observability"
	"github.com/helixir/training-evidence-curator/internal/qdrant"
	"github.com/helixir/training-evidence-curator/internal/repository"
)

// PaperReader is the paper query surface. *repository.PgPaperRepository
// implements it.
type PaperReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CanonicalPaper, error)
	SearchText(ctx context.Context, query, domainName string, limit int) ([]repository.ScoredPaper, error)
	SimilarTo(ctx context.Context, id uuid.UUID, limit int) ([]repository.ScoredPaper, error)
}

// StatsReader lists collection statistics. *repository.PgStatsRepository
// implements it.
type StatsReader interface {
	List(ctx context.Context, domainName string) ([]domain.DomainCollectionStats, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VectorSearcher runs similarity queries outside Postgres. *qdrant.Client
// implements it.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, domainName string, limit uint64) ([]qdrant.SearchResult, error)
}

// Deps are the server's collaborators. Vectors is optional; without it
// similarity queries run on the pgvector column.
type Deps struct {
	Papers  PaperReader
	Stats   StatsReader
	Store   Pinger
	Vectors VectorSearcher
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// MetricsPath mounts the Prometheus handler; empty disables it.
	MetricsPath string
}

// Server is the read API server.
type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	papers     PaperReader
	stats      StatsReader
	store      Pinger
	vectors    VectorSearcher
	metrics    *observability.Metrics
	validate   *validator.Validate
	logger     zerolog.Logger
}

// NewServer creates the server and its routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Papers == nil:
		return nil, errors.New("httpserver: paper reader is required")
	case deps.Stats == nil:
		return nil, errors.New("httpserver: stats reader is required")
	case deps.Store == nil:
		return nil, errors.New("httpserver: store is required")
	}

	s := &Server{
		cfg:      cfg,
		papers:   deps.Papers,
		stats:    deps.Stats,
		store:    deps.Store,
		vectors:  deps.Vectors,
		metrics:  deps.Metrics,
		validate: newValidator(),
		logger:   deps.Logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s, nil
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogMiddleware(s.logger, s.metrics))
	r.Use(middleware.Recoverer)

	if s.cfg.MetricsPath != "" {
		r.Handle(s.cfg.MetricsPath, promhttp.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Get("/healthz", s.healthHandler)
		r.Get("/readyz", s.readinessHandler)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/papers/search", s.searchPapers)
			r.Get("/papers/{paperID}", s.getPaper)
			r.Get("/papers/{paperID}/similar", s.similarPapers)
			r.Get("/stats", s.listStats)
		})
	})

	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler reports liveness only.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the database answers a ping.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": "unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
