package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/ffgs-pipeline/internal/domain"
)

const (
	defaultRecent = 20
	maxRecent     = 500
)

// StatusSource reports the outcome of the latest workflow run.
type StatusSource interface {
	LastStatus() domain.Status
}

// RunHistory lists recently recorded stage executions.
type RunHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.StageRun, error)
}

// Server exposes health, readiness, status, and metrics HTTP endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /status, and
// /metrics routes. history may be nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, status StatusSource, history RunHistory, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.HandleFunc("GET /status", s.handleStatus(status, history))
	mux.Handle("GET /metrics", promhttp.Handler())

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

type statusResponse struct {
	LastStatus string            `json:"last_status"`
	Runs       []domain.StageRun `json:"runs"`
}

func (s *Server) handleStatus(status StatusSource, history RunHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultRecent
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
				return
			}
			limit = min(n, maxRecent)
		}

		resp := statusResponse{LastStatus: string(status.LastStatus()), Runs: []domain.StageRun{}}
		if history != nil {
			runs, err := history.Recent(r.Context(), limit)
			if err != nil {
				s.logger.Error("list stage runs failed", "error", err)
				sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "stage history unavailable"})
				return
			}
			if runs != nil {
				resp.Runs = runs
			}
		}
		sharedobs.WriteJSON(w, http.StatusOK, resp)
	}
}
