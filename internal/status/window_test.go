package status

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWindowAppendWithinCapacity(t *testing.T) {
	w := NewOutputWindow(16)
	w.Append([]byte("hello "))
	w.Append([]byte("world"))
	if got := string(w.Bytes()); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
}

func TestWindowTrimsFromFront(t *testing.T) {
	w := NewOutputWindow(8)
	w.Append([]byte("abcdefgh"))
	w.Append([]byte("XY"))
	if got := string(w.Bytes()); got != "cdefghXY" {
		t.Errorf("expected contiguous tail %q, got %q", "cdefghXY", got)
	}
	if w.Len() != 8 {
		t.Errorf("expected len 8, got %d", w.Len())
	}
}

func TestWindowOversizedChunkKeepsTail(t *testing.T) {
	w := NewOutputWindow(4)
	w.Append([]byte("0123456789"))
	if got := string(w.Bytes()); got != "6789" {
		t.Errorf("expected %q, got %q", "6789", got)
	}
}

func TestWindowTrimKeepsRuneBoundary(t *testing.T) {
	w := NewOutputWindow(8)
	// Spinner runes are 3 bytes each; force a trim landing mid-rune.
	w.Append([]byte(strings.Repeat("⠋", 4))) // 12 bytes into an 8-byte window
	if !utf8.Valid(w.Bytes()) {
		t.Fatalf("window content is not valid UTF-8: %q", w.Bytes())
	}
	if !bytes.Contains(w.Bytes(), []byte("⠋")) {
		t.Error("expected at least one intact rune retained")
	}
}

func TestWindowMultiChunkPatternVisible(t *testing.T) {
	// A marker split across chunk boundaries must still be matchable in
	// the assembled window.
	w := NewOutputWindow(DefaultWindowBytes)
	w.Append([]byte("# Please enter the com"))
	w.Append([]byte("mit message"))
	if !bytes.Contains(w.Bytes(), []byte("# Please enter the commit message")) {
		t.Error("marker split across chunks should be contiguous in the window")
	}
}

func TestWindowReset(t *testing.T) {
	w := NewOutputWindow(8)
	w.Append([]byte("data"))
	w.Reset()
	if w.Len() != 0 {
		t.Errorf("expected empty window after reset, got %d bytes", w.Len())
	}
}
