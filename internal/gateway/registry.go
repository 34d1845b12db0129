package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// InvokeResult is the raw outcome of one organ endpoint call.
type InvokeResult struct {
	Data json.RawMessage
	Size int64 // response size in bytes, drives the cost size tier
}

// Invoker performs the actual capability call. Implementations are opaque
// request/response clients; the gateway treats one Invoke as one billable
// operation.
type Invoker interface {
	Invoke(ctx context.Context, organ, tool string, params map[string]any) (InvokeResult, error)
}

// Organ is one registered capability endpoint with its admission limit.
type Organ struct {
	Name      string
	RateLimit int // calls per hour
	Invoker   Invoker
}

// Registry maps organ names to their endpoints. It is immutable once built;
// hot-reload builds a new Registry and swaps it at the gateway.
type Registry struct {
	mu     sync.RWMutex
	organs map[string]Organ
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{organs: make(map[string]Organ)}
}

// Register adds an organ. Panics on duplicate name to surface
// misconfiguration early; config validation rejects duplicates first.
func (r *Registry) Register(o Organ) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.organs[o.Name]; exists {
		panic(fmt.Sprintf("organ registry: duplicate organ %q", o.Name))
	}
	r.organs[o.Name] = o
}

// Get returns the organ by name.
func (r *Registry) Get(name string) (Organ, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.organs[name]
	if !ok {
		return Organ{}, fmt.Errorf("no organ registered under %q", name)
	}
	return o, nil
}

// Names returns all registered organ names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.organs))
	for name := range r.organs {
		out = append(out, name)
	}
	return out
}
