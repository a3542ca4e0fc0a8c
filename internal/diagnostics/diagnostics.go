// Package diagnostics keeps the per-session list of non-fatal problems shown
// to the user next to a balance snapshot.
package diagnostics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a diagnostic entry.
type Kind string

const (
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindRejection  Kind = "rejection"
	KindTerminal   Kind = "terminal"
)

// Entry is one recorded problem.
type Entry struct {
	At      time.Time `json:"at"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
}

// Recorder is what components write diagnostics to.
type Recorder interface {
	Add(kind Kind, format string, args ...any)
}

// Log is an append-only, concurrency-safe diagnostics list.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	now     func() time.Time
	logger  *slog.Logger
}

// New returns an empty log.
func New(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{now: time.Now, logger: logger}
}

// Add appends an entry and mirrors it to slog at debug level.
func (l *Log) Add(kind Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	l.entries = append(l.entries, Entry{At: l.now().UTC(), Kind: kind, Message: msg})
	l.mu.Unlock()

	l.logger.Debug("Diagnostic recorded", "kind", kind, "message", msg)
}

// Entries returns a copy of the list in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset empties the list.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Discard drops every entry.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Add(Kind, string, ...any) {}
