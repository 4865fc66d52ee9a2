// Package server exposes the tariff pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/export"
	"github.com/sells-group/tariff-sync/internal/metrics"
	"github.com/sells-group/tariff-sync/internal/model"
)

// maxBodyBytes caps manual ingestion payloads.
const maxBodyBytes = 10 << 20

// Service is the pipeline surface used by the handlers.
type Service interface {
	FetchAndPersist(ctx context.Context, date string) (int64, error)
	SaveTariffData(ctx context.Context, items []model.TariffItem, date string) (int64, error)
	ExportSnapshot(ctx context.Context, dests []model.SheetDestination) (*export.Report, error)
	GetByDate(ctx context.Context, date string) ([]model.TariffRecord, error)
	GetLatestDate(ctx context.Context) (string, error)
	GetAllSorted(ctx context.Context) ([]model.TariffRecord, error)
	GetByRange(ctx context.Context, start, end string) ([]model.TariffRecord, error)
	GetAllDates(ctx context.Context) ([]string, error)
	GetSnapshot(ctx context.Context) ([]model.TariffRecord, error)
	SyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithDestinations sets the destinations used by POST /export.
func WithDestinations(dests []model.SheetDestination) Option {
	return func(s *Server) { s.dests = dests }
}

// WithLocation sets the timezone used to compute today's date for POST /sync.
func WithLocation(loc *time.Location) Option {
	return func(s *Server) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithAllowedOrigins sets the CORS allowed origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// Server holds the HTTP handlers.
type Server struct {
	svc     Service
	dests   []model.SheetDestination
	loc     *time.Location
	now     func() time.Time
	origins []string
}

// New creates a Server backed by svc.
func New(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:     svc,
		loc:     time.UTC,
		now:     time.Now,
		origins: []string{"*"},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/tariff", func(r chi.Router) {
		r.Get("/dates", s.getDates)
		r.Get("/latest", s.getLatest)
		r.Get("/all", s.getAll)
		r.Get("/range", s.getRange)
		r.Get("/snapshot", s.getSnapshot)
		r.Get("/runs", s.getRuns)
		r.Post("/sync", s.triggerSync)
		r.Post("/export", s.triggerExport)
		r.Get("/{date}", s.getByDate)
		r.Post("/{date}", s.save)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("server: request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindConfiguration:
		return http.StatusServiceUnavailable
	case model.KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
