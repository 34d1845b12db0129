// Package guard screens organ calls before any billing happens: the rate
// guard throttles per-organ call volume and the security guard rejects
// parameter payloads matching blocked patterns.
package guard

import (
	"sync"
	"time"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/metrics"
)

// windowLength is the fixed rate window.
const windowLength = time.Hour

// organWindow tracks one organ's calls inside the current window. Each
// organ has its own lock so admission for one organ never blocks another.
type organWindow struct {
	mu    sync.Mutex
	count int
	start time.Time
	end   time.Time
}

// RateGuard admits or denies organ calls against per-organ hourly limits.
type RateGuard struct {
	audit *audit.Log
	now   func() time.Time

	mu      sync.Mutex
	windows map[string]*organWindow
}

// NewRateGuard creates a RateGuard. now may be nil (wall clock); tests
// inject a fake clock.
func NewRateGuard(auditLog *audit.Log, now func() time.Time) *RateGuard {
	if now == nil {
		now = time.Now
	}
	return &RateGuard{
		audit:   auditLog,
		now:     now,
		windows: make(map[string]*organWindow),
	}
}

func (g *RateGuard) window(organ string) *organWindow {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.windows[organ]
	if !ok {
		w = &organWindow{}
		g.windows[organ] = w
	}
	return w
}

// Allow admits one call for organ under the given limit. The check and the
// increment happen under the organ's lock, so two concurrent calls can never
// both take the last slot. Denials are audited as security events.
func (g *RateGuard) Allow(organ string, limit int) bool {
	w := g.window(organ)
	w.mu.Lock()
	defer w.mu.Unlock()

	now := g.now()
	if w.end.IsZero() || !now.Before(w.end) {
		w.count = 0
		w.start = now
		w.end = now.Add(windowLength)
	}

	if w.count >= limit {
		metrics.RateLimitDenials.WithLabelValues(organ).Inc()
		g.audit.Append(audit.Event{
			Category: audit.CategorySecurity,
			Message:  "rate limit exceeded",
			Payload: map[string]any{
				"organ": organ, "count": w.count, "limit": limit,
				"window_resets_at": w.end,
			},
		})
		return false
	}
	w.count++
	return true
}

// WindowStat is a point-in-time view of one organ's rate window.
type WindowStat struct {
	Organ    string    `json:"organ"`
	Count    int       `json:"count"`
	ResetsAt time.Time `json:"resets_at"`
}

// Stats snapshots every tracked organ window.
func (g *RateGuard) Stats() []WindowStat {
	g.mu.Lock()
	organs := make([]string, 0, len(g.windows))
	for organ := range g.windows {
		organs = append(organs, organ)
	}
	g.mu.Unlock()

	out := make([]WindowStat, 0, len(organs))
	for _, organ := range organs {
		w := g.window(organ)
		w.mu.Lock()
		out = append(out, WindowStat{Organ: organ, Count: w.count, ResetsAt: w.end})
		w.mu.Unlock()
	}
	return out
}
