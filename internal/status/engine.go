package status

import (
	"log/slog"
	"sync"
	"time"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
)

var engineLog = logging.ForComponent(logging.CompStatus)

// DefaultIdleTimeout is how long a working session may stay silent before
// it is considered idle again.
const DefaultIdleTimeout = 30 * time.Second

// EngineConfig tunes the engine and its embedded matcher.
type EngineConfig struct {
	Matcher     MatcherConfig
	IdleTimeout time.Duration
}

// SessionInfo is a read-only view of one tracked session's state.
type SessionInfo struct {
	SessionID        string     `json:"sessionId"`
	Shell            ShellScope `json:"shell"`
	Status           Status     `json:"status"`
	LastMatchedRule  string     `json:"lastMatchedPatternId,omitempty"`
	LastTransitionAt time.Time  `json:"lastTransitionAt"`
	LastOutputAt     time.Time  `json:"lastOutputAt"`
}

// session is the per-session mutable state. Guarded by its own mutex so one
// session's event handling never blocks another's.
type session struct {
	mu sync.Mutex

	id    string
	shell ShellScope

	status           Status
	lastMatchedRule  string
	lastTransitionAt time.Time
	lastOutputAt     time.Time

	idleTimer *time.Timer
	ended     bool
}

// Engine converts matcher results and idle timing into stable per-session
// statuses and broadcasts actual changes. It is the only writer of session
// state.
type Engine struct {
	matcher     *Matcher
	broadcaster *Broadcaster
	idleTimeout time.Duration
	now         func() time.Time // test hook

	mu       sync.RWMutex
	sessions map[string]*session
	closed   bool
}

// NewEngine wires a matcher over registry and a fresh broadcaster.
func NewEngine(registry *Registry, cfg EngineConfig) *Engine {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	return &Engine{
		matcher:     NewMatcher(registry, cfg.Matcher),
		broadcaster: NewBroadcaster(),
		idleTimeout: cfg.IdleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*session),
	}
}

// Broadcaster exposes the change broadcaster for transport bridges and
// collaborator sinks.
func (e *Engine) Broadcaster() *Broadcaster { return e.broadcaster }

// Track starts classifying a session. Initial status is idle. Tracking an
// already tracked id is a no-op.
func (e *Engine) Track(sessionID string, shell ShellScope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.sessions[sessionID] != nil {
		return
	}
	s := &session{
		id:               sessionID,
		shell:            shell,
		status:           StatusIdle,
		lastTransitionAt: e.now(),
	}
	s.idleTimer = time.AfterFunc(e.idleTimeout, func() { e.idleTick(sessionID) })
	e.sessions[sessionID] = s
	engineLog.Info("session_tracked",
		slog.String("session_id", sessionID),
		slog.String("shell", string(shell)))
}

// Untrack stops classifying a session: the idle timer is cancelled, the
// match window released, and session-scoped subscriptions dropped. Unknown
// ids are ignored.
func (e *Engine) Untrack(sessionID string) {
	e.mu.Lock()
	s := e.sessions[sessionID]
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	s.ended = true
	s.idleTimer.Stop()
	s.mu.Unlock()
	e.matcher.Forget(sessionID)
	e.broadcaster.DropSession(sessionID)
	engineLog.Info("session_untracked", slog.String("session_id", sessionID))
}

// Ingest feeds one raw output chunk through the matcher and the transition
// policy. Unknown sessions and empty chunks leave all state unchanged; the
// engine never raises outward from the event path.
func (e *Engine) Ingest(sessionID string, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	e.mu.RLock()
	s := e.sessions[sessionID]
	e.mu.RUnlock()
	if s == nil {
		return
	}
	e.ingest(s, sessionID, chunk)
}

func (e *Engine) ingest(s *session, sessionID string, chunk []byte) {
	match := e.matcher.OnOutput(sessionID, s.shell, chunk)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		// Session was untracked while the match was in flight. OnOutput has
		// recreated matcher state for it; release that too, or a later
		// session reusing the id would inherit the stale window.
		e.matcher.Forget(sessionID)
		return
	}
	s.lastOutputAt = e.now()
	s.idleTimer.Reset(e.idleTimeout)

	switch {
	case match != nil && (match.Status == StatusError || match.Status == StatusWaiting):
		// High-value signals transition immediately, no debounce.
		e.transitionLocked(s, match.Status, match.PatternID)
	case match != nil && match.Status == StatusWorking:
		e.transitionLocked(s, StatusWorking, match.PatternID)
	case match != nil && match.Status == StatusIdle:
		e.transitionLocked(s, StatusIdle, match.PatternID)
	case match == nil && s.status == StatusIdle:
		// Generic activity fallback for tools with no dedicated rule.
		e.transitionLocked(s, StatusWorking, "")
	}
}

// idleTick fires when a session has been silent for the idle timeout.
// Only working sessions revert to idle; waiting and error statuses persist
// until a later match supersedes them.
func (e *Engine) idleTick(sessionID string) {
	e.mu.RLock()
	s := e.sessions[sessionID]
	e.mu.RUnlock()
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.status == StatusWorking && e.now().Sub(s.lastOutputAt) >= e.idleTimeout {
		e.transitionLocked(s, StatusIdle, "")
	}
}

// transitionLocked applies a status change and publishes it exactly once.
// Re-applying the current status is a no-op: no duplicate events.
func (e *Engine) transitionLocked(s *session, next Status, patternID string) {
	if s.status == next {
		if patternID != "" {
			s.lastMatchedRule = patternID
		}
		return
	}
	prev := s.status
	ts := e.now()
	s.status = next
	s.lastMatchedRule = patternID
	s.lastTransitionAt = ts

	ev := StatusChangeEvent{
		SessionID:        s.id,
		Previous:         prev,
		New:              next,
		MatchedPatternID: patternID,
		Timestamp:        ts,
	}
	e.broadcaster.Publish(ev)
	engineLog.Debug("status_transition",
		slog.String("session_id", s.id),
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
		slog.String("pattern_id", patternID))
}

// Snapshot returns a read-only view of one session's state.
func (e *Engine) Snapshot(sessionID string) (SessionInfo, bool) {
	e.mu.RLock()
	s := e.sessions[sessionID]
	e.mu.RUnlock()
	if s == nil {
		return SessionInfo{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		SessionID:        s.id,
		Shell:            s.shell,
		Status:           s.status,
		LastMatchedRule:  s.lastMatchedRule,
		LastTransitionAt: s.lastTransitionAt,
		LastOutputAt:     s.lastOutputAt,
	}, true
}

// Sessions returns snapshots of every tracked session.
func (e *Engine) Sessions() []SessionInfo {
	e.mu.RLock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.RUnlock()
	out := make([]SessionInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := e.Snapshot(id); ok {
			out = append(out, info)
		}
	}
	return out
}

// SessionCount returns the number of tracked sessions.
func (e *Engine) SessionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// Healthy reports whether the engine is accepting events.
func (e *Engine) Healthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close untracks every session and stops accepting new ones.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.Untrack(id)
	}
}
