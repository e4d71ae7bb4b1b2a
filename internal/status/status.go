// Package status implements the terminal activity classification engine:
// an ordered rule registry, a bounded-window buffer matcher, the per-session
// status state machine, and the change broadcaster feeding the dashboard.
package status

import (
	"errors"
	"fmt"
	"time"
)

// Status is the inferred activity state of a tracked session.
type Status string

const (
	StatusIdle    Status = "idle"    // no recent activity, at rest
	StatusWorking Status = "working" // output flowing or a busy rule matched
	StatusWaiting Status = "waiting" // a prompt is waiting for user input
	StatusError   Status = "error"   // an error marker matched (merge conflict, build failure)
)

// ValidStatus reports whether s is one of the four closed statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusIdle, StatusWorking, StatusWaiting, StatusError:
		return true
	}
	return false
}

// ShellScope identifies which shell family a rule applies to.
// ScopeAll is an explicit wildcard member, not a string special case.
type ShellScope string

const (
	ScopeAll        ShellScope = "all"
	ScopeBash       ShellScope = "bash"
	ScopeZsh        ShellScope = "zsh"
	ScopeFish       ShellScope = "fish"
	ScopeSh         ShellScope = "sh"
	ScopePowershell ShellScope = "powershell"
)

// ValidScope reports whether sc is a member of the closed scope set.
func ValidScope(sc ShellScope) bool {
	switch sc {
	case ScopeAll, ScopeBash, ScopeZsh, ScopeFish, ScopeSh, ScopePowershell:
		return true
	}
	return false
}

// Applies reports whether a rule with scope sc applies to a session with
// scope session. Sessions with an unknown or empty scope only see wildcard
// rules.
func (sc ShellScope) Applies(session ShellScope) bool {
	if sc == ScopeAll {
		return true
	}
	return sc == session && ValidScope(session)
}

// StatusChangeEvent describes one actual status transition. Ephemeral;
// the engine never persists these.
type StatusChangeEvent struct {
	SessionID        string    `json:"sessionId"`
	Previous         Status    `json:"previousStatus"`
	New              Status    `json:"status"`
	MatchedPatternID string    `json:"matchedPatternId,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// ErrNotFound is returned by Enable/Disable for an unknown rule id.
var ErrNotFound = errors.New("pattern not found")

// CompileError rejects a rule whose expression does not compile.
// The registry is left untouched when registration fails with it.
type CompileError struct {
	PatternID string
	Expr      string
	Err       error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern %q: compile %q: %v", e.PatternID, e.Expr, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }
