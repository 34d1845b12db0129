package guard

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/metrics"
)

// ViolationError reports which blocked pattern a payload matched. The raw
// payload is deliberately not carried to keep it out of error strings and
// logs.
type ViolationError struct {
	Pattern string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("security violation: payload matches blocked pattern %q", e.Pattern)
}

type blockedPattern struct {
	raw string
	re  *regexp.Regexp
}

// SecurityGuard validates organ call parameters against an ordered list of
// case-insensitive blocked patterns. The list is mutable at runtime (hot
// reload); individual validations see a consistent snapshot.
type SecurityGuard struct {
	audit *audit.Log

	mu       sync.RWMutex
	patterns []blockedPattern
}

// NewSecurityGuard compiles the initial pattern list. Any pattern that
// fails to compile rejects the whole list.
func NewSecurityGuard(patterns []string, auditLog *audit.Log) (*SecurityGuard, error) {
	g := &SecurityGuard{audit: auditLog}
	if err := g.SetPatterns(patterns); err != nil {
		return nil, err
	}
	return g, nil
}

// SetPatterns atomically replaces the blocked-pattern list, preserving
// order.
func (g *SecurityGuard) SetPatterns(patterns []string) error {
	compiled := make([]blockedPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("compile blocked pattern %q: %w", p, err)
		}
		compiled = append(compiled, blockedPattern{raw: p, re: re})
	}
	g.mu.Lock()
	g.patterns = compiled
	g.mu.Unlock()
	return nil
}

// Validate serializes params to canonical JSON (object keys sorted) and
// tests it against each blocked pattern in order. The first match is
// audited and returned as a ViolationError; a clean payload has no side
// effects. Validate must run before any billing or organ invocation.
func (g *SecurityGuard) Validate(organ string, params map[string]any) error {
	serialized, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("serialize params: %w", err)
	}

	g.mu.RLock()
	patterns := g.patterns
	g.mu.RUnlock()

	for _, p := range patterns {
		if p.re.Match(serialized) {
			metrics.SecurityRejections.Inc()
			g.audit.Append(audit.Event{
				Category: audit.CategorySecurity,
				Message:  "call parameters matched blocked pattern",
				Payload:  map[string]any{"organ": organ, "pattern": p.raw},
			})
			return &ViolationError{Pattern: p.raw}
		}
	}
	return nil
}
