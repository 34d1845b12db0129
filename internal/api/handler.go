package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/config"
	"github.com/borglife/wealthd/internal/gateway"
	"github.com/borglife/wealthd/internal/guard"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/metrics"
	"github.com/borglife/wealthd/internal/settle"
	"github.com/borglife/wealthd/internal/transfer"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	gw        *gateway.Gateway
	transfers *transfer.Service
	ledger    *ledger.Ledger
	auditLog  *audit.Log
	rate      *guard.RateGuard
	security  *guard.SecurityGuard
	network   settle.Adapter
	loader    *config.Loader
	mux       *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(gw *gateway.Gateway, transfers *transfer.Service, l *ledger.Ledger, auditLog *audit.Log, rate *guard.RateGuard, security *guard.SecurityGuard, network settle.Adapter, loader *config.Loader) http.Handler {
	h := &Handler{
		gw:        gw,
		transfers: transfers,
		ledger:    l,
		auditLog:  auditLog,
		rate:      rate,
		security:  security,
		network:   network,
		loader:    loader,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/organs/call", h.callOrgan)
	h.mux.HandleFunc("GET /v1/organs", h.listOrgans)
	h.mux.HandleFunc("POST /v1/transfers", h.executeTransfer)
	h.mux.HandleFunc("POST /v1/transfers/reconcile", h.reconcile)
	h.mux.HandleFunc("GET /v1/accounts/{address}/balance", h.accountBalance)
	h.mux.HandleFunc("GET /v1/accounts/{address}/usage", h.accountUsage)
	h.mux.HandleFunc("POST /v1/accounts/{address}/sync", h.syncBalance)
	h.mux.HandleFunc("GET /v1/audit", h.queryAudit)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/organs/call — synchronous billed organ call.
func (h *Handler) callOrgan(w http.ResponseWriter, r *http.Request) {
	var req gateway.CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Account == "" || req.Organ == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "account and organ are required")
		return
	}

	res, err := h.gw.Call(r.Context(), &req)
	if err != nil {
		status, kind := classify(err)
		writeError(w, status, kind, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GET /v1/organs — registered organs and current rate-window stats.
func (h *Handler) listOrgans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"organs":       h.gw.Settings().Registry.Names(),
		"rate_windows": h.rate.Stats(),
	})
}

type transferPayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Currency  string `json:"currency"`
	Amount    int64  `json:"amount"`
	TimeoutMs int    `json:"timeout_ms"`
}

// POST /v1/transfers — run one transfer to a terminal state.
func (h *Handler) executeTransfer(w http.ResponseWriter, r *http.Request) {
	var p transferPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if p.From == "" || p.To == "" || p.Currency == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "from, to, and currency are required")
		return
	}

	req, err := h.transfers.Execute(r.Context(), p.From, p.To, p.Currency, p.Amount,
		time.Duration(p.TimeoutMs)*time.Millisecond)
	if err != nil {
		status, kind := classify(err)
		// The terminal request is returned alongside the error kind so
		// callers see the full context of the failure.
		writeJSON(w, status, map[string]interface{}{
			"kind":    kind,
			"error":   err.Error(),
			"request": req,
		})
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// POST /v1/transfers/reconcile — complete any half-settled transfers.
func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	n := h.transfers.Reconcile(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{"recovered": n})
}

// GET /v1/accounts/{address}/balance
func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = h.gw.Settings().Currency
	}
	balance, held, err := h.ledger.State(r.Context(), address, currency)
	if err != nil {
		status, kind := classify(err)
		writeError(w, status, kind, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":   address,
		"currency":  currency,
		"balance":   balance,
		"held":      held,
		"available": balance - held,
	})
}

// GET /v1/accounts/{address}/usage?since=RFC3339
func (h *Handler) accountUsage(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	since := time.Now().AddDate(0, 0, -7)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid since: %s", err))
			return
		}
		since = parsed
	}
	writeJSON(w, http.StatusOK, h.gw.Usage(address, since))
}

// POST /v1/accounts/{address}/sync — reconcile the local balance with the
// settlement network's view.
func (h *Handler) syncBalance(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		currency = h.gw.Settings().Currency
	}
	external, err := h.network.ExternalBalance(r.Context(), address)
	if err != nil {
		writeError(w, http.StatusBadGateway, "settlement_unreachable", err.Error())
		return
	}
	delta, err := h.ledger.SyncExternal(r.Context(), address, currency, external)
	if err != nil {
		status, kind := classify(err)
		writeError(w, status, kind, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address, "currency": currency,
		"external_balance": external, "adjustment": delta,
	})
}

// GET /v1/audit?category=&since=&until=
func (h *Handler) queryAudit(w http.ResponseWriter, r *http.Request) {
	var f audit.Filter
	f.Category = audit.Category(r.URL.Query().Get("category"))
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid since: %s", err))
			return
		}
		f.Since = t
	}
	if raw := r.URL.Query().Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid until: %s", err))
			return
		}
		f.Until = t
	}
	events := h.auditLog.Query(f)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"events": events,
	})
}

// POST /v1/config/reload — hot-reload organ rates, limits, and blocked
// patterns from disk.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
		return
	}
	settings, err := gateway.BuildSettings(cfg)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
		return
	}
	if err := h.security.SetPatterns(cfg.Security.BlockedPatterns); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_config", err.Error())
		return
	}
	h.gw.SwapSettings(settings)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"organs":   len(cfg.Organs),
		"patterns": len(cfg.Security.BlockedPatterns),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 if the call queue is >80% full or the settlement
// network is unreachable.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.gw.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	settlement := "ok"
	if err := h.network.HealthCheck(r.Context()); err != nil {
		settlement = err.Error()
	}
	status := http.StatusOK
	state := "ready"
	if settlement != "ok" {
		status = http.StatusServiceUnavailable
		state = "settlement_unreachable"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":            state,
		"queue_utilization": util,
		"settlement":        settlement,
	})
}
