package guard

import (
	"errors"
	"testing"

	"github.com/borglife/wealthd/internal/audit"
)

func newTestGuard(t *testing.T, patterns []string) (*SecurityGuard, *audit.Log) {
	t.Helper()
	log := audit.New(nil, nil)
	g, err := NewSecurityGuard(patterns, log)
	if err != nil {
		t.Fatalf("NewSecurityGuard: %v", err)
	}
	return g, log
}

func TestValidateBlocksMatchingPayload(t *testing.T) {
	g, log := newTestGuard(t, []string{"<script", `eval\s*\(`})

	err := g.Validate("gmail", map[string]any{"body": "hello <script>alert(1)</script>"})
	var viol *ViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want ViolationError", err)
	}
	if viol.Pattern != "<script" {
		t.Fatalf("matched pattern %q, want %q", viol.Pattern, "<script")
	}

	events := log.Query(audit.Filter{Category: audit.CategorySecurity})
	if len(events) != 1 {
		t.Fatalf("got %d security events, want 1", len(events))
	}
	// The audit event names the pattern, never the raw payload.
	if _, ok := events[0].Payload["params"]; ok {
		t.Fatal("audit event carries raw params")
	}
	if events[0].Payload["pattern"] != "<script" {
		t.Fatalf("audit pattern = %v, want %q", events[0].Payload["pattern"], "<script")
	}
}

func TestValidateCleanPayloadHasNoSideEffects(t *testing.T) {
	g, log := newTestGuard(t, []string{"<script", "subprocess"})

	if err := g.Validate("stripe", map[string]any{"amount": 100, "memo": "lunch"}); err != nil {
		t.Fatalf("clean payload rejected: %v", err)
	}
	if log.Len() != 0 {
		t.Fatalf("clean validation appended %d audit events", log.Len())
	}
}

func TestValidateIsCaseInsensitive(t *testing.T) {
	g, _ := newTestGuard(t, []string{"drop\\s+table"})

	err := g.Validate("mongodb", map[string]any{"query": "DROP TABLE accounts"})
	var viol *ViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want ViolationError", err)
	}
}

func TestValidateScansNestedValues(t *testing.T) {
	g, _ := newTestGuard(t, []string{"javascript:"})

	err := g.Validate("gmail", map[string]any{
		"headers": map[string]any{"link": "javascript:void(0)"},
	})
	if err == nil {
		t.Fatal("nested match not detected")
	}
}

func TestFirstPatternWins(t *testing.T) {
	g, _ := newTestGuard(t, []string{"exec", "eval"})

	err := g.Validate("gmail", map[string]any{"cmd": "eval(exec(x))"})
	var viol *ViolationError
	if !errors.As(err, &viol) {
		t.Fatalf("got %v, want ViolationError", err)
	}
	if viol.Pattern != "exec" {
		t.Fatalf("matched %q, want first-listed %q", viol.Pattern, "exec")
	}
}

func TestSetPatternsSwapsList(t *testing.T) {
	g, _ := newTestGuard(t, []string{"<script"})

	if err := g.SetPatterns([]string{"subprocess"}); err != nil {
		t.Fatalf("SetPatterns: %v", err)
	}
	if err := g.Validate("gmail", map[string]any{"body": "<script>"}); err != nil {
		t.Fatalf("old pattern still active: %v", err)
	}
	if err := g.Validate("gmail", map[string]any{"body": "import subprocess"}); err == nil {
		t.Fatal("new pattern not active")
	}
}

func TestSetPatternsRejectsBadRegexp(t *testing.T) {
	g, _ := newTestGuard(t, []string{"<script"})

	if err := g.SetPatterns([]string{"valid", "(unclosed"}); err == nil {
		t.Fatal("invalid pattern accepted")
	}
	// A rejected list must leave the previous one in force.
	if err := g.Validate("gmail", map[string]any{"body": "<script>"}); err == nil {
		t.Fatal("previous patterns lost after failed swap")
	}
}
