package status

import "unicode/utf8"

// DefaultWindowBytes is the default per-session match window capacity.
// This is the recent-output tail used for rule matching, not scrollback.
const DefaultWindowBytes = 8 * 1024

// OutputWindow is a bounded buffer of the most recent raw output bytes for
// one session. On overflow the oldest bytes are discarded; the retained tail
// is always contiguous so multi-line patterns spanning recent lines stay
// matchable. Not safe for concurrent use; the matcher serializes access per
// session.
type OutputWindow struct {
	buf []byte
	cap int
}

// NewOutputWindow creates a window with the given byte capacity.
func NewOutputWindow(capacity int) *OutputWindow {
	if capacity <= 0 {
		capacity = DefaultWindowBytes
	}
	return &OutputWindow{buf: make([]byte, 0, capacity), cap: capacity}
}

// Append adds chunk to the window, trimming from the front on overflow.
// The trim point is advanced to the next rune boundary so the window never
// starts mid-rune (terminal output is treated as UTF-8 where possible, and
// a split multi-byte rune would break literal pattern matches).
func (w *OutputWindow) Append(chunk []byte) {
	if len(chunk) >= w.cap {
		// Chunk alone fills the window: keep only its tail.
		w.buf = append(w.buf[:0], chunk[len(chunk)-w.cap:]...)
		w.trimToRuneBoundary()
		return
	}
	overflow := len(w.buf) + len(chunk) - w.cap
	if overflow > 0 {
		w.buf = append(w.buf[:0], w.buf[overflow:]...)
	}
	w.buf = append(w.buf, chunk...)
	if overflow > 0 {
		w.trimToRuneBoundary()
	}
}

// trimToRuneBoundary drops leading continuation bytes left by a front trim.
func (w *OutputWindow) trimToRuneBoundary() {
	i := 0
	for i < len(w.buf) && i < utf8.UTFMax && !utf8.RuneStart(w.buf[i]) {
		i++
	}
	if i > 0 {
		w.buf = append(w.buf[:0], w.buf[i:]...)
	}
}

// Bytes returns the current window content. The slice aliases internal
// storage and is only valid until the next Append.
func (w *OutputWindow) Bytes() []byte { return w.buf }

// Len returns the number of bytes currently held.
func (w *OutputWindow) Len() int { return len(w.buf) }

// Reset empties the window, keeping its capacity.
func (w *OutputWindow) Reset() { w.buf = w.buf[:0] }
