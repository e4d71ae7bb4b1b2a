// Package web exposes the daemon's HTTP surface: health probes, the status
// WebSocket feed, and the session ingest API used by the session transport.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AsabiAlgo/masterdashboard/internal/history"
	"github.com/AsabiAlgo/masterdashboard/internal/logging"
	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Config defines runtime options for the web server.
type Config struct {
	ListenAddr string
}

// Server wraps the HTTP server around the classification engine.
type Server struct {
	cfg        Config
	httpServer *http.Server
	engine     *status.Engine
	hist       *history.Store // nil when the history sink is disabled
	startedAt  time.Time
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewServer creates a server with all routes registered. hist may be nil.
func NewServer(cfg Config, engine *status.Engine, hist *history.Store) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:8431"
	}
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		hist:      hist,
		startedAt: time.Now(),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/live", s.handleHealthLive)
	mux.HandleFunc("GET /health/ready", s.handleHealthReady)
	mux.HandleFunc("POST /api/sessions", s.handleTrackSession)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/output", s.handleSessionOutput)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleUntrackSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /ws/status", s.handleStatusWS)
	mux.HandleFunc("GET /ws/status/{id}", s.handleStatusWS)

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           withRecover(mux),
		BaseContext:       func(_ net.Listener) context.Context { return s.baseCtx },
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler returns the configured HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until shutdown or listen error. Returns nil on graceful
// shutdown.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, force-closing long-lived WebSocket
// connections when the grace period runs out.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBase != nil {
		s.cancelBase()
	}
	err := s.httpServer.Shutdown(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("graceful shutdown timed out and force close failed: %w", closeErr)
		}
		return nil
	}
	return err
}

func withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ForComponent(logging.CompWeb).Error("panic",
					slog.String("recover", fmt.Sprintf("%v", rec)),
					slog.String("path", r.URL.Path))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiErrorResponse{Error: apiError{Code: code, Message: message}})
}
