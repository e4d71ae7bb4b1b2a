package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

type wsClientMessage struct {
	Type string `json:"type"`
}

type wsServerMessage struct {
	Type      string    `json:"type"` // status_change, status, error
	Event     string    `json:"event,omitempty"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Previous  string    `json:"previousStatus,omitempty"`
	Status    string    `json:"status,omitempty"`
	PatternID string    `json:"matchedPatternId,omitempty"`
	Time      time.Time `json:"timestamp,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     allowWSOrigin,
}

func allowWSOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil || originURL.Host == "" {
		return false
	}
	return strings.EqualFold(originURL.Host, r.Host)
}

// wsConnWriter serializes writes to one WebSocket connection.
type wsConnWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func newWSConnWriter(conn *websocket.Conn) *wsConnWriter {
	return &wsConnWriter{conn: conn}
}

func (w *wsConnWriter) WriteJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(v)
}

// handleStatusWS streams status-change events for one session, or for all
// sessions when no id is present in the path (dashboard-wide view). Events
// arrive in transition order per session; a consumer that falls behind loses
// only its own events.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID != "" {
		if _, ok := s.engine.Snapshot(sessionID); !ok {
			writeAPIError(w, http.StatusNotFound, "NOT_FOUND", "session not found")
			return
		}
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	writer := newWSConnWriter(conn)

	var sub *status.Subscription
	if sessionID == "" {
		sub = s.engine.Broadcaster().SubscribeAll()
	} else {
		sub = s.engine.Broadcaster().Subscribe(sessionID)
	}
	defer sub.Close()

	_ = writer.WriteJSON(wsServerMessage{
		Type:      "status",
		Event:     "connected",
		SessionID: sessionID,
		Time:      time.Now().UTC(),
	})

	// Reader goroutine: consumes client pings and unblocks on close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(
					err,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway,
					websocket.CloseNoStatusReceived,
				) {
					logging.ForComponent(logging.CompWeb).Warn("websocket_closed_unexpectedly",
						slog.String("session_id", sessionID),
						slog.String("error", err.Error()))
				}
				return
			}
			var msg wsClientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				_ = writer.WriteJSON(wsServerMessage{
					Type:    "error",
					Code:    "INVALID_MESSAGE",
					Message: "invalid json payload",
					Time:    time.Now().UTC(),
				})
				continue
			}
			switch msg.Type {
			case "ping":
				_ = writer.WriteJSON(wsServerMessage{
					Type:  "status",
					Event: "pong",
					Time:  time.Now().UTC(),
				})
			default:
				_ = writer.WriteJSON(wsServerMessage{
					Type:    "error",
					Code:    "UNSUPPORTED_MESSAGE",
					Message: "supported message types: ping",
					Time:    time.Now().UTC(),
				})
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				// Session untracked: tell the client and end the feed.
				_ = writer.WriteJSON(wsServerMessage{
					Type:      "status",
					Event:     "session_ended",
					SessionID: sessionID,
					Time:      time.Now().UTC(),
				})
				return
			}
			if err := writer.WriteJSON(wsServerMessage{
				Type:      "status_change",
				SessionID: ev.SessionID,
				Previous:  string(ev.Previous),
				Status:    string(ev.New),
				PatternID: ev.MatchedPatternID,
				Time:      ev.Timestamp,
			}); err != nil {
				return
			}
		}
	}
}
