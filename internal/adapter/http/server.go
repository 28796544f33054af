// Package http exposes the service's operational endpoints: health,
// readiness, Prometheus metrics, and read-only views of stored AADV results
// and the per-site import log.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dvrpc/traffic-counts/internal/aadv"
	"github.com/dvrpc/traffic-counts/internal/domain"
	"github.com/dvrpc/traffic-counts/internal/report"
)

// ReadinessChecker reports whether the importer is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// SiteReader serves the read-only site views. The storage layer implements it.
type SiteReader interface {
	Results(ctx context.Context, site int64) ([]aadv.Result, error)
	ImportLog(ctx context.Context, site int64) ([]report.Entry, error)
}

// Server exposes the operational HTTP endpoints.
type Server struct {
	httpServer *http.Server
	sites      SiteReader
	logger     *slog.Logger
}

// NewServer creates the HTTP server. sites may be nil, which disables the
// site views (the import-only binary runs without a queryable store).
func NewServer(addr string, ready ReadinessChecker, sites SiteReader, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		sites:  sites,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if sites != nil {
		mux.HandleFunc("GET /sites/{site}/aadv", s.handleResults)
		mux.HandleFunc("GET /sites/{site}/log", s.handleImportLog)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type resultView struct {
	Direction  string `json:"direction,omitempty"`
	Value      int    `json:"value"`
	ComputedOn string `json:"computed_on"`
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	site, ok := sitePath(w, r)
	if !ok {
		return
	}

	results, err := s.sites.Results(r.Context(), site)
	if err != nil {
		s.logger.Error("load results failed", "site", site, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
		return
	}

	views := make([]resultView, 0, len(results))
	for _, res := range results {
		views = append(views, resultView{
			Direction:  string(res.Direction),
			Value:      res.Value,
			ComputedOn: res.ComputedOn.Format(domain.DateLayout),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": site, "results": views})
}

type logView struct {
	LoggedAt string `json:"logged_at"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

func (s *Server) handleImportLog(w http.ResponseWriter, r *http.Request) {
	site, ok := sitePath(w, r)
	if !ok {
		return
	}

	entries, err := s.sites.ImportLog(r.Context(), site)
	if err != nil {
		s.logger.Error("load import log failed", "site", site, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
		return
	}

	views := make([]logView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, logView{
			LoggedAt: entry.LoggedAt.UTC().Format(time.RFC3339),
			Level:    string(entry.Severity),
			Message:  entry.Message,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"site": site, "entries": views})
}

func sitePath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	site, err := strconv.ParseInt(r.PathValue("site"), 10, 64)
	if err != nil || site <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid site"})
		return 0, false
	}
	return site, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort health response
}
