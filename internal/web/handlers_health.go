package web

import (
	"context"
	"net/http"
	"time"
)

type healthConnections struct {
	WebSocket int `json:"websocket"`
}

type healthResponse struct {
	Status      string            `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Uptime      float64           `json:"uptime"`
	Version     string            `json:"version"`
	Connections healthConnections `json:"connections"`
}

type readyChecks struct {
	Database  bool `json:"database"`
	WebSocket bool `json:"websocket"`
}

type readyResponse struct {
	Ready  bool        `json:"ready"`
	Checks readyChecks `json:"checks"`
}

// handleHealth reports overall health plus the live subscriber count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := "ok"
	code := http.StatusOK
	if !s.engine.Healthy() {
		st = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    st,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(s.startedAt).Seconds(),
		Version:   Version,
		Connections: healthConnections{
			WebSocket: s.engine.Broadcaster().SubscriberCount(),
		},
	})
}

// handleHealthLive is the liveness probe: the process is serving requests.
func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleHealthReady composes engine and collaborator checks. With the
// history sink disabled the database check passes vacuously.
func (s *Server) handleHealthReady(w http.ResponseWriter, r *http.Request) {
	checks := readyChecks{
		Database:  true,
		WebSocket: s.engine.Healthy(),
	}
	if s.hist != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks.Database = s.hist.Ping(ctx) == nil
	}
	resp := readyResponse{Ready: checks.Database && checks.WebSocket, Checks: checks}
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
