package status

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
)

// MatcherConfig tunes the per-session evaluation throttle and budget.
type MatcherConfig struct {
	// WindowBytes is the per-session match window capacity.
	WindowBytes int

	// MinEvalInterval is the minimum spacing between full-window
	// evaluations for one session. Zero disables the throttle.
	MinEvalInterval time.Duration

	// MinEvalBytes forces an evaluation once this many bytes arrived since
	// the last one, even when the interval throttle would skip it. High-
	// throughput streams get matched per burst instead of per chunk.
	MinEvalBytes int

	// EvalBudget bounds one evaluation round across all applicable rules.
	// Rules not reached before the deadline are skipped for that round.
	EvalBudget time.Duration
}

func (c MatcherConfig) withDefaults() MatcherConfig {
	if c.WindowBytes <= 0 {
		c.WindowBytes = DefaultWindowBytes
	}
	if c.MinEvalInterval <= 0 {
		c.MinEvalInterval = 100 * time.Millisecond
	}
	if c.MinEvalBytes <= 0 {
		c.MinEvalBytes = 2 * 1024
	}
	if c.EvalBudget <= 0 {
		c.EvalBudget = 20 * time.Millisecond
	}
	return c
}

// Match is the outcome of one evaluation round: the first enabled rule, in
// registry order, whose expression matched the window.
type Match struct {
	PatternID string
	Name      string
	Status    Status
	Priority  int
}

// Matcher maintains the bounded output window per session and evaluates the
// registry against it on new output. It is stateless with respect to session
// status; the engine owns that.
type Matcher struct {
	registry *Registry
	cfg      MatcherConfig

	mu       sync.Mutex
	sessions map[string]*matchState
}

type matchState struct {
	mu           sync.Mutex
	window       *OutputWindow
	limiter      *rate.Limiter
	pendingBytes int
}

// NewMatcher creates a matcher evaluating rules from registry.
func NewMatcher(registry *Registry, cfg MatcherConfig) *Matcher {
	return &Matcher{
		registry: registry,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*matchState),
	}
}

// OnOutput appends chunk to the session window and, unless throttled,
// re-evaluates the whole window against the rules for scope. Returns the
// first matching rule or nil. nil is also returned for throttled rounds;
// the buffered bytes remain in the window for the next round.
func (m *Matcher) OnOutput(sessionID string, scope ShellScope, chunk []byte) *Match {
	st := m.state(sessionID)

	st.mu.Lock()
	defer st.mu.Unlock()

	st.window.Append(chunk)
	st.pendingBytes += len(chunk)

	// Event-driven with a cost bound: evaluate when the interval limiter
	// allows, or when enough bytes piled up that skipping would delay a
	// status-relevant marker behind a burst.
	if !st.limiter.Allow() && st.pendingBytes < m.cfg.MinEvalBytes {
		return nil
	}
	st.pendingBytes = 0

	return m.evaluate(sessionID, scope, st.window.Bytes())
}

// evaluate runs the ordered rule list against window within the budget.
func (m *Matcher) evaluate(sessionID string, scope ShellScope, window []byte) *Match {
	if len(window) == 0 {
		return nil
	}
	deadline := time.Now().Add(m.cfg.EvalBudget)
	for _, rule := range m.registry.RulesFor(scope) {
		if time.Now().After(deadline) {
			// Budget exceeded: non-match for this round, never a stall.
			logging.Aggregate(logging.CompMatch, "eval_budget_exceeded",
				slog.String("session_id", sessionID),
				slog.String("last_rule", rule.ID))
			return nil
		}
		if rule.Match(window) {
			return &Match{
				PatternID: rule.ID,
				Name:      rule.Name,
				Status:    rule.Status,
				Priority:  rule.Priority,
			}
		}
	}
	return nil
}

// Forget releases the session's window and throttle state.
func (m *Matcher) Forget(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

func (m *Matcher) state(sessionID string) *matchState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.sessions[sessionID]
	if st == nil {
		st = &matchState{
			window:  NewOutputWindow(m.cfg.WindowBytes),
			limiter: rate.NewLimiter(rate.Every(m.cfg.MinEvalInterval), 1),
		}
		m.sessions[sessionID] = st
	}
	return st
}
