// Package gateway is the composition point for billed organ calls:
// security screening, rate admission, invocation, cost computation, and the
// ledger debit, with every billed call audited.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/cost"
	"github.com/borglife/wealthd/internal/guard"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/metrics"
)

// ErrRateLimitExceeded is returned when the rate guard denies a call.
var ErrRateLimitExceeded = errors.New("gateway: rate limit exceeded")

// Settings is the config-derived state the pipeline reads per call.
// Hot-reload builds a new Settings and swaps it atomically.
type Settings struct {
	Model    *cost.Model
	Registry *Registry
	Currency string // billing currency code, e.g. "WND"
	Scale    int32  // minor-unit decimal scale, e.g. 12
}

// CallRequest describes one organ call on behalf of an account.
type CallRequest struct {
	ID      string         `json:"id"`
	Account string         `json:"account"` // canonical address
	Organ   string         `json:"organ"`
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params"`
}

// CallResult is the outcome of a billed organ call.
type CallResult struct {
	CallID        string          `json:"call_id"`
	Account       string          `json:"account"`
	Organ         string          `json:"organ"`
	Tool          string          `json:"tool"`
	Cost          int64           `json:"cost"` // minor units
	NewAvailable  int64           `json:"new_available"`
	ResponseSize  int64           `json:"response_size"`
	ExecutionSecs float64         `json:"execution_secs"`
	Data          json.RawMessage `json:"data"`
	DurationMs    int64           `json:"duration_ms"`
}

type callWork struct {
	ctx     context.Context
	req     *CallRequest
	resultC chan callOutcome
}

type callOutcome struct {
	res *CallResult
	err error
}

// Gateway runs the organ-call pipeline on a bounded worker pool.
type Gateway struct {
	security *guard.SecurityGuard
	rate     *guard.RateGuard
	ledger   *ledger.Ledger
	audit    *audit.Log
	logger   *slog.Logger

	settings atomic.Pointer[Settings]
	pool     *workerPool[*callWork]
	timeout  time.Duration
}

// New creates a Gateway and starts its worker pool. workers and queueDepth
// bound concurrency; callTimeout bounds how long a synchronous caller waits.
func New(ctx context.Context, sec *guard.SecurityGuard, rate *guard.RateGuard, l *ledger.Ledger, a *audit.Log, s *Settings, workers, queueDepth int, callTimeout time.Duration, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout == 0 {
		callTimeout = 60 * time.Second
	}
	g := &Gateway{
		security: sec,
		rate:     rate,
		ledger:   l,
		audit:    a,
		logger:   logger,
		timeout:  callTimeout,
	}
	g.settings.Store(s)
	g.pool = newWorkerPool(ctx, workers, queueDepth, func(_ context.Context, w *callWork) {
		res, err := g.process(w.ctx, w.req)
		w.resultC <- callOutcome{res: res, err: err}
	})
	return g
}

// SwapSettings atomically replaces the config-derived state (hot reload).
func (g *Gateway) SwapSettings(s *Settings) {
	g.settings.Store(s)
}

// Settings returns the current pipeline settings.
func (g *Gateway) Settings() *Settings {
	return g.settings.Load()
}

// QueueUtilization returns queue used / capacity (0–1).
func (g *Gateway) QueueUtilization() float64 {
	if g.pool.queueCap() == 0 {
		return 0
	}
	return float64(g.pool.queueLen()) / float64(g.pool.queueCap())
}

// Shutdown drains the worker pool.
func (g *Gateway) Shutdown() {
	g.pool.drain()
}

// Call runs one organ call synchronously. A full queue rejects the call
// with no side effects.
func (g *Gateway) Call(ctx context.Context, req *CallRequest) (*CallResult, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	w := &callWork{ctx: ctx, req: req, resultC: make(chan callOutcome, 1)}
	if !g.pool.submit(w) {
		metrics.CallsDropped.Inc()
		return nil, fmt.Errorf("call queue full (capacity %d)", g.pool.queueCap())
	}

	select {
	case out := <-w.resultC:
		return out.res, out.err
	case <-time.After(g.timeout):
		return nil, fmt.Errorf("organ call timeout after %v", g.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// process is the pipeline: security → rate → affordability → invoke →
// cost → debit → record. A call rejected before invocation has zero
// economic or external side effects. Once the debit commits, the call is
// billed even if the caller has gone away.
func (g *Gateway) process(ctx context.Context, req *CallRequest) (*CallResult, error) {
	start := time.Now()
	s := g.settings.Load()

	organ, err := s.Registry.Get(req.Organ)
	if err != nil {
		metrics.OrganCalls.WithLabelValues(req.Organ, "unknown_organ").Inc()
		return nil, err
	}

	if err := g.security.Validate(req.Organ, req.Params); err != nil {
		metrics.OrganCalls.WithLabelValues(req.Organ, "security_rejected").Inc()
		return nil, err
	}

	if !g.rate.Allow(organ.Name, organ.RateLimit) {
		metrics.OrganCalls.WithLabelValues(req.Organ, "rate_limited").Inc()
		return nil, ErrRateLimitExceeded
	}

	// An account that cannot cover even the base rate never reaches the
	// organ.
	minCost := cost.ToMinorUnits(s.Model.BaseRate(organ.Name), s.Scale)
	available, err := g.ledger.Available(ctx, req.Account, s.Currency)
	if err != nil {
		metrics.OrganCalls.WithLabelValues(req.Organ, "error").Inc()
		return nil, err
	}
	if available < minCost {
		metrics.OrganCalls.WithLabelValues(req.Organ, "insufficient_funds").Inc()
		g.audit.Append(audit.Event{
			Category: audit.CategoryBilling,
			Message:  "organ call rejected: cannot cover base rate",
			Payload: map[string]any{
				"account": req.Account, "organ": organ.Name,
				"available": available, "base_cost": minCost,
			},
		})
		return nil, ledger.ErrInsufficientFunds
	}

	// Cancellation is honored up to here with no effect.
	select {
	case <-ctx.Done():
		metrics.OrganCalls.WithLabelValues(req.Organ, "cancelled").Inc()
		return nil, ctx.Err()
	default:
	}

	invokeStart := time.Now()
	invRes, err := organ.Invoker.Invoke(ctx, organ.Name, req.Tool, req.Params)
	execSecs := time.Since(invokeStart).Seconds()
	if err != nil {
		metrics.OrganCalls.WithLabelValues(req.Organ, "organ_error").Inc()
		return nil, fmt.Errorf("organ invocation: %w", err)
	}

	costMajor, err := s.Model.Compute(organ.Name, invRes.Size, decimal.NewFromFloat(execSecs))
	if err != nil {
		metrics.OrganCalls.WithLabelValues(req.Organ, "error").Inc()
		return nil, err
	}
	costMinor := cost.ToMinorUnits(costMajor, s.Scale)

	// Billing proceeds even if the caller cancelled mid-invocation:
	// pay-for-attempt.
	newAvailable := available
	if costMinor > 0 {
		billCtx := context.WithoutCancel(ctx)
		reason := fmt.Sprintf("organ usage: %s/%s", organ.Name, req.Tool)
		newAvailable, err = g.ledger.Debit(billCtx, req.Account, s.Currency, costMinor, reason, req.ID)
		if err != nil {
			metrics.OrganCalls.WithLabelValues(req.Organ, "insufficient_funds").Inc()
			return nil, err
		}
		metrics.AmountsDebited.WithLabelValues(s.Currency).Add(float64(costMinor))
	}

	// The organ call record, written once per billed call.
	g.audit.Append(audit.Event{
		Category: audit.CategoryBilling,
		Message:  "organ call billed",
		Payload: map[string]any{
			"account":        req.Account,
			"organ":          organ.Name,
			"operation":      req.Tool,
			"cost":           costMinor,
			"cost_decimal":   costMajor.String(),
			"currency":       s.Currency,
			"response_size":  invRes.Size,
			"execution_secs": execSecs,
			"correlation_id": req.ID,
		},
	})

	metrics.OrganCalls.WithLabelValues(req.Organ, "billed").Inc()
	metrics.OrganCallDuration.WithLabelValues(req.Organ).Observe(execSecs)

	return &CallResult{
		CallID:        req.ID,
		Account:       req.Account,
		Organ:         organ.Name,
		Tool:          req.Tool,
		Cost:          costMinor,
		NewAvailable:  newAvailable,
		ResponseSize:  invRes.Size,
		ExecutionSecs: execSecs,
		Data:          invRes.Data,
		DurationMs:    time.Since(start).Milliseconds(),
	}, nil
}
