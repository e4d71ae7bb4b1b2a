// Package history records status transitions into SQLite. It is a
// collaborator of the classification core: a broadcaster subscriber, never
// part of the matching or state-machine path. The engine itself persists
// nothing.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
	"github.com/AsabiAlgo/masterdashboard/internal/status"
)

var histLog = logging.ForComponent(logging.CompHistory)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	previous_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	matched_pattern_id TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id, occurred_at);
`

// Transition is one recorded status change.
type Transition struct {
	SessionID        string    `json:"sessionId"`
	Previous         string    `json:"previousStatus"`
	New              string    `json:"status"`
	MatchedPatternID string    `json:"matchedPatternId,omitempty"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// Store wraps the SQLite transition log. Safe for concurrent use within one
// process; WAL mode plus a busy timeout covers concurrent readers.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("open history db: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one transition.
func (s *Store) Record(ctx context.Context, ev status.StatusChangeEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (session_id, previous_status, new_status, matched_pattern_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, string(ev.Previous), string(ev.New), ev.MatchedPatternID, ev.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// Recent returns up to limit transitions for a session, oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, previous_status, new_status, matched_pattern_id, occurred_at
		 FROM (
			SELECT * FROM transitions WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.SessionID, &tr.Previous, &tr.New, &tr.MatchedPatternID, &tr.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Ping reports database readiness for the health surface.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Run consumes a broadcaster subscription until ctx is cancelled or the
// subscription closes, recording each transition. Individual write failures
// are logged and skipped; the feed is never interrupted by them.
func (s *Store) Run(ctx context.Context, sub *status.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			if err := s.Record(ctx, ev); err != nil {
				histLog.Warn("transition_record_failed",
					slog.String("session_id", ev.SessionID),
					slog.String("error", err.Error()))
			}
		}
	}
}
