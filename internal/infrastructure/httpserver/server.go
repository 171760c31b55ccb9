// Package httpserver exposes engine health, attempt status and telemetry over HTTP.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"

	"context-injector/internal/application/port/output"
	"context-injector/internal/domain/entity"
)

type StatusSource interface {
	State() entity.EngineState
	LastAttempt() (entity.SubmissionAttempt, bool)
	ActiveStrategy() string
}

type RecordSource interface {
	Records() []entity.APIRequestRecord
}

type Server struct {
	status  StatusSource
	records RecordSource
	metrics http.Handler
	logger  output.LoggerPort
}

func New(status StatusSource, records RecordSource, metrics http.Handler, logger output.LoggerPort) *Server {
	return &Server{status: status, records: records, metrics: metrics, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(httplog.NewLogger("context-injector", httplog.Options{
		JSON:    true,
		Concise: true,
	}), []string{"/healthz", "/metrics"}))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/status", s.getStatus)
	r.Get("/telemetry", s.listTelemetry)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("telemetry server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

type attemptResponse struct {
	ID          int64  `json:"id"`
	TraceID     string `json:"trace_id"`
	Trigger     string `json:"trigger"`
	Status      string `json:"status"`
	AbortReason string `json:"abort_reason,omitempty"`
	Enhanced    bool   `json:"enhanced"`
	FetchCalls  int    `json:"fetch_calls"`
	StartedAt   string `json:"started_at"`
	DurationMs  int64  `json:"duration_ms"`
}

type statusResponse struct {
	State       string           `json:"state"`
	Strategy    string           `json:"strategy,omitempty"`
	LastAttempt *attemptResponse `json:"last_attempt,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:    string(s.status.State()),
		Strategy: s.status.ActiveStrategy(),
	}
	if a, ok := s.status.LastAttempt(); ok {
		resp.LastAttempt = &attemptResponse{
			ID:          a.ID,
			TraceID:     a.TraceID,
			Trigger:     string(a.Trigger),
			Status:      string(a.Status),
			AbortReason: string(a.AbortReason),
			Enhanced:    a.Enhanced,
			FetchCalls:  a.FetchCalls,
			StartedAt:   a.StartedAt.UTC().Format(time.RFC3339Nano),
			DurationMs:  a.Duration().Milliseconds(),
		}
	}
	writeJSON(w, resp, http.StatusOK)
}

// listTelemetry returns the newest records first; ?limit caps the count.
func (s *Server) listTelemetry(w http.ResponseWriter, r *http.Request) {
	records := s.records.Records()

	limit := len(records)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, map[string]string{"error": "limit must be a non-negative integer"}, http.StatusBadRequest)
			return
		}
		limit = min(n, len(records))
	}

	out := make([]entity.APIRequestRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	writeJSON(w, map[string]any{"records": out, "total": len(records)}, http.StatusOK)
}

func writeJSON(w http.ResponseWriter, value any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}
