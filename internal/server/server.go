// Package server exposes the engine over HTTP: search, ingest, analytics,
// cache administration, and health endpoints.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/feedsearch/feedsearch/internal/analytics"
	"github.com/feedsearch/feedsearch/internal/docstore"
	"github.com/feedsearch/feedsearch/internal/document"
	"github.com/feedsearch/feedsearch/internal/index"
	"github.com/feedsearch/feedsearch/internal/ingest"
	"github.com/feedsearch/feedsearch/internal/searcher"
	"github.com/feedsearch/feedsearch/internal/searcher/cache"
	"github.com/feedsearch/feedsearch/pkg/config"
	apperrors "github.com/feedsearch/feedsearch/pkg/errors"
	"github.com/feedsearch/feedsearch/pkg/health"
	"github.com/feedsearch/feedsearch/pkg/logger"
	"github.com/feedsearch/feedsearch/pkg/metrics"
	"github.com/feedsearch/feedsearch/pkg/middleware"
)

// Server wires the HTTP handlers to the engine components. Optional fields
// (cache, collector, aggregator) may be nil.
type Server struct {
	cfg       *config.Config
	searcher  *searcher.Searcher
	ingester  *ingest.Service
	docs      *docstore.Store
	idx       *index.Store
	cache     *cache.QueryCache
	collector *analytics.Collector
	agg       *analytics.Aggregator
	checker   *health.Checker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New assembles a Server from its dependencies.
func New(
	cfg *config.Config,
	s *searcher.Searcher,
	ing *ingest.Service,
	docs *docstore.Store,
	idx *index.Store,
	qc *cache.QueryCache,
	collector *analytics.Collector,
	agg *analytics.Aggregator,
	checker *health.Checker,
	m *metrics.Metrics,
	log *slog.Logger,
) *Server {
	return &Server{
		cfg:       cfg,
		searcher:  s,
		ingester:  ing,
		docs:      docs,
		idx:       idx,
		cache:     qc,
		collector: collector,
		agg:       agg,
		checker:   checker,
		metrics:   m,
		logger:    log,
	}
}

// Routes returns the full handler with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/search", s.handleSearch)
	mux.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", s.handleCacheInvalidate)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.checker != nil {
		mux.HandleFunc("GET /health/live", s.checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", s.checker.ReadyHandler())
	}

	var handler http.Handler = mux
	handler = middleware.Timeout(s.cfg.Server.WriteTimeout)(handler)
	if s.metrics != nil {
		handler = middleware.Metrics(s.metrics)(handler)
	}
	handler = middleware.RequestID(handler)
	return handler
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req document.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid search request: %v", err))
		return
	}

	started := time.Now()
	version := s.idx.Current().Version()
	resp, cached := s.cache.GetOrCompute(r.Context(), req, version, func() document.SearchResponse {
		return s.searcher.Search(r.Context(), req)
	})
	if s.metrics != nil {
		status := "miss"
		if cached {
			status = "hit"
		}
		s.metrics.SearchLatency.WithLabelValues(status).Observe(time.Since(started).Seconds())
	}
	s.track(r, req, resp, cached)
	s.writeJSON(w, http.StatusOK, resp)
}

// track records a search event for analytics, when the collector is wired.
func (s *Server) track(r *http.Request, req document.SearchRequest, resp document.SearchResponse, cached bool) {
	if s.collector == nil {
		return
	}
	eventType := analytics.EventSearch
	if resp.SyntaxError {
		eventType = analytics.EventSyntaxError
	} else if resp.TotalHits == 0 {
		eventType = analytics.EventZeroResult
	}
	s.collector.Track(analytics.SearchEvent{
		Type:      eventType,
		Query:     req.Query,
		TotalHits: resp.TotalHits,
		Returned:  len(resp.Results),
		LatencyMs: resp.TookMs,
		CacheHit:  cached,
		UsedPRF:   req.UsePRF,
		Timestamp: time.Now().UTC(),
		RequestID: logger.RequestID(r.Context()),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req document.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "invalid ingest request: %v", err))
		return
	}
	if len(req.Docs) == 0 {
		s.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "docs must not be empty"))
		return
	}

	resp, err := s.ingester.Ingest(r.Context(), req.Docs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.agg == nil {
		s.writeError(w, r, apperrors.New(apperrors.ErrInvalidInput, http.StatusNotFound, "analytics not enabled"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.agg.Stats())
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.cache.Invalidate(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"invalidated": deleted})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	idx := s.idx.Current()
	s.writeJSON(w, http.StatusOK, document.HealthResponse{
		Status:       "ok",
		IndexVersion: idx.Version(),
		DocsCount:    s.docs.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if status >= 500 {
		logger.FromContext(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: message})
}
