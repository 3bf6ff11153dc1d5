// Package api exposes the HTTP interface for browsing discovered tools and
// triggering scrape runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/toolscout/toolscout/internal/config"
	"github.com/toolscout/toolscout/internal/scrape"
	"github.com/toolscout/toolscout/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxRelatedTools = 5
)

// ScrapeRunner triggers scrape runs on demand.
type ScrapeRunner interface {
	Run(ctx context.Context, only ...string) []scrape.SourceReport
	Sources() []string
}

// Server wires HTTP handlers to the store and the scrape runner.
type Server struct {
	router chi.Router
	store  store.Store
	runner ScrapeRunner
	logger *zap.Logger
	cfg    config.Config
}

// NewServer constructs a Server with middleware and routes. runner may be nil
// when scraping is not exposed.
func NewServer(st store.Store, runner ScrapeRunner, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		store:  st,
		runner: runner,
		logger: logger,
		cfg:    cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", s.listTools)
		r.Get("/tools/{tool_id}", s.getTool)
		r.Get("/search", s.searchTools)
		r.Get("/sources", s.listSources)
		r.Post("/scrape", s.triggerScrape)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountAll(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type toolListResponse struct {
	Tools   []store.Tool `json:"tools"`
	Total   int          `json:"total"`
	Page    int          `json:"page"`
	PerPage int          `json:"per_page"`
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	page, perPage := pagination(r)
	offset := (page - 1) * perPage
	ctx := r.Context()

	var (
		tools []store.Tool
		total int
		err   error
	)
	query := r.URL.Query().Get("q")
	source := r.URL.Query().Get("source")
	switch {
	case query != "":
		tools, err = s.store.Search(ctx, query, perPage, offset)
		if err == nil {
			total, err = s.store.CountSearch(ctx, query)
		}
	case source != "":
		tools, err = s.store.ListBySource(ctx, source, perPage, offset)
		if err == nil {
			total, err = s.store.CountBySource(ctx, source)
		}
	default:
		tools, err = s.store.List(ctx, perPage, offset)
		if err == nil {
			total, err = s.store.CountAll(ctx)
		}
	}
	if err != nil {
		s.logger.Error("list tools failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list tools")
		return
	}
	if tools == nil {
		tools = []store.Tool{}
	}
	writeJSON(w, http.StatusOK, toolListResponse{Tools: tools, Total: total, Page: page, PerPage: perPage})
}

type toolDetailResponse struct {
	Tool    store.Tool   `json:"tool"`
	Related []store.Tool `json:"related"`
}

func (s *Server) getTool(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "tool_id")
	ctx := r.Context()
	tool, err := s.store.GetByID(ctx, toolID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "tool not found")
		return
	}
	if err != nil {
		s.logger.Error("get tool failed", zap.String("tool_id", toolID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch tool")
		return
	}

	// Related tools come from the same source; the lookup is best effort.
	related := []store.Tool{}
	sameSource, err := s.store.ListBySource(ctx, tool.Source, maxRelatedTools+1, 0)
	if err != nil {
		s.logger.Warn("related tools lookup failed", zap.String("tool_id", toolID), zap.Error(err))
	}
	for _, candidate := range sameSource {
		if candidate.ID == tool.ID {
			continue
		}
		related = append(related, candidate)
		if len(related) == maxRelatedTools {
			break
		}
	}
	writeJSON(w, http.StatusOK, toolDetailResponse{Tool: tool, Related: related})
}

func (s *Server) searchTools(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("q") == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	s.listTools(w, r)
}

type sourceStatus struct {
	Source        string     `json:"source"`
	ToolCount     int        `json:"tool_count"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := s.store.SourceCounts(ctx)
	if err != nil {
		s.logger.Error("source counts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	names := []string{}
	if s.runner != nil {
		names = s.runner.Sources()
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for name := range counts {
		if !seen[name] {
			names = append(names, name)
		}
	}

	statuses := make([]sourceStatus, 0, len(names))
	for _, name := range names {
		status := sourceStatus{Source: name, ToolCount: counts[name]}
		ts, err := s.store.LastScrapeTime(ctx, name)
		if err != nil {
			s.logger.Warn("last scrape time failed", zap.String("source", name), zap.Error(err))
		} else if !ts.IsZero() {
			status.LastScrapedAt = &ts
		}
		statuses = append(statuses, status)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": statuses})
}

type scrapeRequest struct {
	Sources []string `json:"sources"`
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "scraping is not configured")
		return
	}
	var req scrapeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	known := make(map[string]bool)
	for _, name := range s.runner.Sources() {
		known[name] = true
	}
	for _, name := range req.Sources {
		if !known[name] {
			writeError(w, http.StatusBadRequest, "unknown source "+name)
			return
		}
	}

	reports := s.runner.Run(r.Context(), req.Sources...)
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func pagination(r *http.Request) (page, perPage int) {
	page = 1
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	perPage = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	return page, perPage
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
