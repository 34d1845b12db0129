// Package audit provides the append-only event trail shared by every
// economic component. Events are kept in insertion order and mirrored to a
// durable sink; a sink failure is surfaced on the fallback logger and
// counted, never silently dropped.
package audit

import (
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/borglife/wealthd/internal/metrics"
)

// Category partitions the audit trail by concern.
type Category string

const (
	CategorySecurity Category = "security"
	CategoryBilling  Category = "billing"
	CategoryTransfer Category = "transfer"
)

// Event is a single immutable audit record.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Category  Category       `json:"category"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink receives each appended event for durable storage.
type Sink interface {
	Write(ev Event) error
}

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Category Category
	Since    time.Time
	Until    time.Time
}

func (f Filter) match(ev Event) bool {
	if f.Category != "" && ev.Category != f.Category {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !ev.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Log is the append-only audit log. Appends are atomic per event: a reader
// never observes a partially written record, and events are visible in the
// order they were appended.
type Log struct {
	mu     sync.RWMutex
	events []Event
	sink   Sink
	logger *slog.Logger
}

// New creates a Log writing through to sink. A nil sink keeps events
// in memory only.
func New(sink Sink, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{sink: sink, logger: logger}
}

// Append records ev. The in-memory trail always succeeds; a sink write
// failure is reported to the fallback logger and metrics.
func (l *Log) Append(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()

	if l.sink != nil {
		if err := l.sink.Write(ev); err != nil {
			metrics.AuditSinkErrors.Inc()
			l.logger.Error("audit sink write failed",
				"category", ev.Category, "message", ev.Message, "err", err)
		}
	}
}

// Events iterates events matching f in append order without copying the
// trail. Each range over the returned sequence restarts from the beginning
// and sees the events present when iteration starts; events are immutable
// once appended, so no lock is held while the consumer runs.
func (l *Log) Events(f Filter) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		l.mu.RLock()
		events := l.events
		l.mu.RUnlock()
		for _, ev := range events {
			if !f.match(ev) {
				continue
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Query materializes the events matching f in append order.
func (l *Log) Query(f Filter) []Event {
	out := make([]Event, 0)
	for ev := range l.Events(f) {
		out = append(out, ev)
	}
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
