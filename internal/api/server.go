// Package api exposes the HTTP interface for the media fetch service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hewell/mediafetch/internal/fetch"
	"github.com/hewell/mediafetch/internal/faults"
	"github.com/hewell/mediafetch/internal/metrics"
	"github.com/hewell/mediafetch/internal/monitor"
	"github.com/hewell/mediafetch/internal/pool"
	"github.com/hewell/mediafetch/internal/progress"
)

const (
	defaultRecentMinutes = 5
	maxRecentMinutes     = 1440
	defaultTopLimit      = 10
	maxTopLimit          = 100
	requestTimeout       = 60 * time.Second
)

// Server wires HTTP handlers to the fetch pipeline and its observability.
type Server struct {
	router    chi.Router
	orch      *fetch.Orchestrator
	collector *metrics.Collector
	monitor   *monitor.Monitor
	pool      *pool.Manager
	tracker   *progress.Tracker
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *fetch.Orchestrator,
	collector *metrics.Collector,
	mon *monitor.Monitor,
	pm *pool.Manager,
	tracker *progress.Tracker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:      orch,
		collector: collector,
		monitor:   mon,
		pool:      pm,
		tracker:   tracker,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/fetch", s.fetchOne)
		r.Post("/fetch/group", s.fetchGroup)
		r.Get("/stats", s.stats)
		r.Get("/health", s.health)
		r.Get("/pool", s.poolStats)
		r.Route("/errors", func(r chi.Router) {
			r.Get("/recent", s.recentErrors)
			r.Get("/top", s.topErrors)
		})
		r.Get("/operations/{operation_id}", s.getOperation)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) fetchOne(w http.ResponseWriter, r *http.Request) {
	var req fetch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	artifact, err := s.orch.Fetch(r.Context(), req)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"artifact": artifact})
}

type groupRequest struct {
	Requests []fetch.Request `json:"requests"`
}

func (s *Server) fetchGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Requests) == 0 {
		s.writeError(w, http.StatusBadRequest, "requests are required")
		return
	}
	artifacts, err := s.orch.FetchGroup(r.Context(), req.Requests)
	if err != nil {
		var fe *faults.FetchError
		if errors.As(err, &fe) && fe.Category == faults.CategoryValidation && artifacts == nil {
			s.writeError(w, http.StatusBadRequest, fe.Message)
			return
		}
		// Partial results are still worth returning.
		s.writeJSON(w, http.StatusMultiStatus, map[string]any{
			"artifacts": artifacts,
			"error":     err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.collector.Stats())
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	result := s.monitor.PerformHealthCheck(r.Context())
	status := http.StatusOK
	if result.Status == monitor.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, result)
}

func (s *Server) poolStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.pool.Stats())
}

func (s *Server) recentErrors(w http.ResponseWriter, r *http.Request) {
	minutes, err := queryInt(r, "minutes", defaultRecentMinutes, maxRecentMinutes)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recent := s.collector.Recent(time.Duration(minutes) * time.Minute)
	s.writeJSON(w, http.StatusOK, map[string]any{"errors": toErrorDTOs(recent)})
}

func (s *Server) topErrors(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTopLimit, maxTopLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"top": s.collector.TopErrors(limit)})
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "operation_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid operation_id")
		return
	}
	op, ok := s.tracker.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"operation": toOperationDTO(op)})
}

func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	var fe *faults.FetchError
	if !errors.As(err, &fe) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusBadGateway
	switch {
	case fe.Category == faults.CategoryValidation:
		status = http.StatusUnprocessableEntity
	case fe.Code == faults.CodeSessionCancelled:
		status = http.StatusRequestTimeout
	}
	s.writeJSON(w, status, map[string]any{
		"error":    fe.Message,
		"code":     fe.Code,
		"category": fe.Category,
	})
}

type errorDTO struct {
	Code         string         `json:"code"`
	Category     string         `json:"category"`
	Severity     string         `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
	Context      map[string]any `json:"context,omitempty"`
	RetryCount   int            `json:"retry_count"`
	FallbackUsed bool           `json:"fallback_used"`
}

func toErrorDTOs(in []metrics.ErrorMetric) []errorDTO {
	out := make([]errorDTO, 0, len(in))
	for _, m := range in {
		out = append(out, errorDTO{
			Code:         m.Code,
			Category:     string(m.Category),
			Severity:     m.Severity.String(),
			Timestamp:    m.Timestamp,
			Context:      m.Context,
			RetryCount:   m.RetryCount,
			FallbackUsed: m.FallbackUsed,
		})
	}
	return out
}

type stepDTO struct {
	Name  string `json:"name"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type operationDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     string    `json:"owner,omitempty"`
	State     string    `json:"state"`
	Percent   float64   `json:"percent"`
	Steps     []stepDTO `json:"steps"`
	StartedAt time.Time `json:"started_at"`
}

func toOperationDTO(op progress.Operation) operationDTO {
	steps := make([]stepDTO, 0, len(op.Steps))
	for _, step := range op.Steps {
		dto := stepDTO{Name: step.Name, State: string(step.State)}
		if step.Err != nil {
			dto.Error = step.Err.Error()
		}
		steps = append(steps, dto)
	}
	return operationDTO{
		ID:        op.ID.String(),
		Name:      op.Name,
		Owner:     op.Owner,
		State:     string(op.State),
		Percent:   op.Percent(),
		Steps:     steps,
		StartedAt: op.StartedAt,
	}
}

func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	if val > max {
		val = max
	}
	return val, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
