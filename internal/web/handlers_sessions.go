package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

// maxOutputChunk caps one ingest request body. The matcher window is a few
// kilobytes, so anything beyond this would be trimmed away immediately.
const maxOutputChunk = 256 * 1024

type trackSessionRequest struct {
	SessionID string `json:"sessionId"`
	Shell     string `json:"shell"`
}

// handleTrackSession registers a session with the engine. The shell may be
// any member of the closed scope set; unknown values are accepted but match
// only wildcard rules.
func (s *Server) handleTrackSession(w http.ResponseWriter, r *http.Request) {
	var req trackSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid json payload")
		return
	}
	if req.SessionID == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "sessionId is required")
		return
	}
	s.engine.Track(req.SessionID, status.ShellScope(req.Shell))
	info, _ := s.engine.Snapshot(req.SessionID)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Sessions())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, ok := s.engine.Snapshot(r.PathValue("id"))
	if !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleSessionOutput feeds one raw output chunk to the engine. The body is
// opaque bytes; no parsing happens here or downstream.
func (s *Server) handleSessionOutput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.engine.Snapshot(id); !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxOutputChunk))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "failed to read output body")
		return
	}
	s.engine.Ingest(id, chunk)
	info, _ := s.engine.Snapshot(id)
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUntrackSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.engine.Snapshot(id); !ok {
		writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	s.engine.Untrack(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "untracked"})
}

// handleSessionHistory serves recent recorded transitions when the history
// sink is enabled.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeAPIError(w, http.StatusNotFound, "HISTORY_DISABLED", "transition history is not enabled")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	transitions, err := s.hist.Recent(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, transitions)
}
