// Package server exposes the agent over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
	"github.com/Divas-Gupta30/esports-agent/internal/metrics"
	"github.com/Divas-Gupta30/esports-agent/internal/session"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

const maxBodyBytes = 1 << 20

// Turner answers one question within a session.
type Turner interface {
	RunTurn(ctx context.Context, question, sessionID string) (*graph.TurnResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Addr     string
	Engine   Turner
	Executor graph.QueryExecutor
	// DB is checked by /health when set.
	DB       Pinger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
	// EnableRawQuery mounts POST /execute_query.
	EnableRawQuery bool
	// NewSessionID mints ids for requests that omit one. Defaults to UUIDv4.
	NewSessionID func() string
}

type Server struct {
	opts   Options
	router *mux.Router
	log    *slog.Logger
}

type QueryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

type QueryResponse struct {
	Summary   string `json:"summary"`
	SessionID string `json:"session_id"`
	SQLQuery  string `json:"sql_query"`
}

type ExecuteRequest struct {
	SQLQuery string `json:"sql_query"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

func New(opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	s := &Server{opts: opts, router: mux.NewRouter(), log: opts.Logger}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.instrument)

	s.router.HandleFunc("/query", s.handleQuery).Methods("POST")
	if s.opts.EnableRawQuery && s.opts.Executor != nil {
		s.router.HandleFunc("/execute_query", s.handleExecuteQuery).Methods("POST")
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled and then shuts down
// gracefully, giving in-flight turns up to 30 seconds to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("agent server starting", "addr", s.opts.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.log.Info("server exited")
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "No question provided")
		return
	}
	if req.SessionID == "" {
		req.SessionID = s.opts.NewSessionID()
	}

	res, err := s.opts.Engine.RunTurn(r.Context(), req.Question, req.SessionID)
	if err != nil {
		status := statusFor(err)
		s.log.Warn("query failed", "session", req.SessionID, "status", status, "error", err)
		writeJSON(w, status, ErrorResponse{Error: errorMessage(err), SessionID: req.SessionID})
		return
	}

	writeJSON(w, http.StatusOK, QueryResponse{
		Summary:   res.Summary,
		SessionID: res.SessionID,
		SQLQuery:  res.SQLQuery,
	})
}

// handleExecuteQuery runs raw SQL. A single row is returned as a bare
// object; anything else is wrapped as {"results": [...]}.
func (s *Server) handleExecuteQuery(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.SQLQuery) == "" {
		writeError(w, http.StatusBadRequest, "No SQL query provided")
		return
	}

	rows, err := s.opts.Executor.Query(r.Context(), req.SQLQuery)
	if err != nil {
		var qerr *storage.QueryError
		if errors.As(err, &qerr) {
			writeError(w, http.StatusInternalServerError, "Database error: "+qerr.Err.Error())
			return
		}
		s.log.Error("raw query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error occurred")
		return
	}

	if len(rows) == 1 {
		writeJSON(w, http.StatusOK, rows[0])
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": rows})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.opts.DB.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// statusFor maps a turn error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, graph.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrRetryExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, graph.ErrCallTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	if errors.Is(err, graph.ErrRetryExhausted) {
		return "No summary generated: " + err.Error()
	}
	return err.Error()
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and durations per route template.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		s.opts.Metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		s.opts.Metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
