// Package httpapi exposes records, reports and ingestion over HTTP.
package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"pullview/internal/config"
	"pullview/internal/domain"
	"pullview/internal/ratelimit"
	"pullview/internal/service"
)

type RecordStore interface {
	Create(ctx context.Context, record *domain.Record) (*domain.Record, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter domain.RecordFilter) ([]domain.Record, error)
}

type SourceStore interface {
	List(ctx context.Context) ([]domain.Source, error)
}

type ReportStore interface {
	List(ctx context.Context, q domain.ReportQuery) ([]domain.Report, int, error)
	Get(ctx context.Context, id int64) (*domain.Report, error)
	Create(ctx context.Context, weekStart time.Time, title string, body *string) (*domain.Report, error)
	Update(ctx context.Context, id int64, patch domain.ReportPatch) (*domain.Report, error)
	Delete(ctx context.Context, id int64) error
}

type StatsStore interface {
	Snapshot(ctx context.Context) (*domain.StoreSnapshot, error)
}

type Ingester interface {
	Platform(kind string) (service.Platform, error)
	Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestResult, error)
	RunBatch(ctx context.Context, req domain.BatchRequest) ([]domain.BatchOutcome, error)
}

type Importer interface {
	Import(ctx context.Context, r io.Reader) (*service.ImportResult, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error)
}

// Pinger reports database reachability for the health check.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the handlers call into.
type Deps struct {
	Records  RecordStore
	Sources  SourceStore
	Reports  ReportStore
	Stats    StatsStore
	Ingester Ingester
	Importer Importer
	Limiter  RateLimiter
	DB       Pinger
}

type Server struct {
	deps   Deps
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

func New(deps Deps, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.With("component", "http"),
		now:    time.Now,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, domain.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, r, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Get("/healthz", s.handleHealth)

	r.Route("/records", func(r chi.Router) {
		r.Get("/", s.handleListRecords)
		r.Get("/{id}", s.handleGetRecord)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIToken)
			r.Post("/", s.handleCreateRecord)
			r.Post("/bulk", s.handleBulkRecords)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
	})

	r.Get("/sources", s.handleListSources)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handleListReports)
		r.Get("/{id}", s.handleGetReport)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAPIToken)
			r.Post("/", s.handleCreateReport)
			r.Put("/{id}", s.handleUpdateReport)
			r.Delete("/{id}", s.handleDeleteReport)
		})
	})

	r.Route("/ingest/{platform}", func(r chi.Router) {
		r.With(s.requireIngestToken).Get("/", s.handleIngest)
		r.With(s.requireCronToken).Get("/run", s.handleRunBatch)
	})

	r.With(s.requireCronToken).Get("/debug/db", s.handleDebugDB)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.deps.DB != nil {
		if err := s.deps.DB.PingContext(ctx); err != nil {
			s.logger.Error("health check failed", "error", err)
			s.writeJSON(w, r, http.StatusServiceUnavailable, errorBody{Error: "database unavailable"})
			return
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"ok": true})
}
