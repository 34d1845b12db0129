// Package ledger tracks per-account, per-currency balances with a
// reservation (hold) mechanism. All amounts are non-negative int64 minor
// units. Operations on one (account, currency) pair are linearized behind a
// per-pair lock; pairs never block each other. Every mutation writes through
// to the persistent store before it is acknowledged.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/store"
)

// normCurrency upper-cases currency codes so "wnd" and "WND" are one pair,
// one lock, and one store row.
func normCurrency(currency string) string {
	return strings.ToUpper(currency)
}

// pairState is the cached state for one (account, currency) pair.
type pairState struct {
	mu     sync.Mutex
	loaded bool
	bal    store.BalanceState
	halted bool // set on invariant violation; mutations refused until cleared
}

// Ledger is the wealth ledger. Safe for concurrent use.
type Ledger struct {
	store  store.Store
	audit  *audit.Log
	logger *slog.Logger

	mu    sync.Mutex
	pairs map[string]*pairState
}

// New creates a Ledger over the given store.
func New(st store.Store, auditLog *audit.Log, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  st,
		audit:  auditLog,
		logger: logger,
		pairs:  make(map[string]*pairState),
	}
}

func (l *Ledger) pair(account, currency string) *pairState {
	key := account + "/" + currency
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pairs[key]
	if !ok {
		p = &pairState{}
		l.pairs[key] = p
	}
	return p
}

// load populates p from the store on first touch. Caller holds p.mu.
func (l *Ledger) load(ctx context.Context, p *pairState, account, currency string) error {
	if p.loaded {
		return nil
	}
	bal, err := l.store.GetBalance(ctx, account, currency)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load %s/%s: %w", account, currency, err)
	}
	p.bal = bal
	p.loaded = true
	return nil
}

// commit writes the new state through to the store and appends the entry.
// Memory is only updated once both durable writes succeed. Caller holds p.mu.
func (l *Ledger) commit(ctx context.Context, p *pairState, next store.BalanceState, e Entry) error {
	if err := l.store.PutBalance(ctx, e.Account, e.Currency, next); err != nil {
		return err
	}
	if err := l.store.AppendTransaction(ctx, store.Transaction{
		ID:            e.ID,
		Account:       e.Account,
		Currency:      e.Currency,
		Delta:         e.Delta,
		Kind:          string(e.Kind),
		Reason:        e.Reason,
		CorrelationID: e.CorrelationID,
		Timestamp:     e.Timestamp,
	}); err != nil {
		// Balance is durable but the entry is not; surface loudly so the
		// trail can be repaired from the balance table.
		l.logger.Error("ledger entry append failed after balance write",
			"entry", e.ID, "account", e.Account, "currency", e.Currency, "err", err)
		return err
	}
	p.bal = next
	return nil
}

// Available returns balance − held for the pair. Unknown pairs are zero.
func (l *Ledger) Available(ctx context.Context, account, currency string) (int64, error) {
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.load(ctx, p, account, currency); err != nil {
		return 0, err
	}
	return p.bal.Balance - p.bal.Held, nil
}

// State returns the full (balance, held) pair.
func (l *Ledger) State(ctx context.Context, account, currency string) (balance, held int64, err error) {
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.load(ctx, p, account, currency); err != nil {
		return 0, 0, err
	}
	return p.bal.Balance, p.bal.Held, nil
}

// Credit adds amount to the pair's balance and returns the new available
// amount. Amount must be positive.
func (l *Ledger) Credit(ctx context.Context, account, currency string, amount int64, reason, correlationID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return 0, err
	}

	next := p.bal
	next.Balance += amount
	e := newEntry(account, currency, amount, KindCredit, reason, correlationID)
	if err := l.commit(ctx, p, next, e); err != nil {
		return 0, err
	}
	return p.bal.Balance - p.bal.Held, nil
}

// Debit removes amount from the pair's balance if available covers it.
// The availability check and the mutation are indivisible. On failure no
// state changes and a billing audit event is recorded.
func (l *Ledger) Debit(ctx context.Context, account, currency string, amount int64, reason, correlationID string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return 0, err
	}

	available := p.bal.Balance - p.bal.Held
	if available < amount {
		l.audit.Append(audit.Event{
			Category: audit.CategoryBilling,
			Message:  "debit rejected: insufficient funds",
			Payload: map[string]any{
				"account": account, "currency": currency,
				"amount": amount, "available": available, "reason": reason,
			},
		})
		return 0, ErrInsufficientFunds
	}

	next := p.bal
	next.Balance -= amount
	e := newEntry(account, currency, -amount, KindDebit, reason, correlationID)
	if err := l.commit(ctx, p, next, e); err != nil {
		return 0, err
	}
	return p.bal.Balance - p.bal.Held, nil
}

// Hold atomically moves amount from available into held without changing
// the total balance. Used by the transfer protocol to reserve funds pending
// external settlement.
func (l *Ledger) Hold(ctx context.Context, account, currency string, amount int64, correlationID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return err
	}

	if p.bal.Balance-p.bal.Held < amount {
		return ErrInsufficientFunds
	}
	next := p.bal
	next.Held += amount
	e := newEntry(account, currency, -amount, KindHold, "transfer hold", correlationID)
	return l.commit(ctx, p, next, e)
}

// Settle converts a previously held amount into a real debit: held and
// balance both decrease by amount. A settle without a matching hold halts
// the pair.
func (l *Ledger) Settle(ctx context.Context, account, currency string, amount int64, correlationID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return err
	}

	if p.bal.Held < amount || p.bal.Balance < amount {
		return l.halt(p, account, currency,
			fmt.Sprintf("settle %d exceeds held %d or balance %d", amount, p.bal.Held, p.bal.Balance))
	}
	next := p.bal
	next.Held -= amount
	next.Balance -= amount
	e := newEntry(account, currency, -amount, KindSettle, "transfer settled", correlationID)
	return l.commit(ctx, p, next, e)
}

// Release returns a held amount to available without changing balance; used
// when a transfer fails after the hold but before settlement.
func (l *Ledger) Release(ctx context.Context, account, currency string, amount int64, correlationID string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return err
	}

	if p.bal.Held < amount {
		return l.halt(p, account, currency,
			fmt.Sprintf("release %d exceeds held %d", amount, p.bal.Held))
	}
	next := p.bal
	next.Held -= amount
	e := newEntry(account, currency, amount, KindRelease, "transfer hold released", correlationID)
	return l.commit(ctx, p, next, e)
}

// SyncExternal reconciles the local balance with the settlement network's
// view, recording the difference as an adjustment entry. Held funds are
// untouched; a sync that would push available negative halts the pair.
func (l *Ledger) SyncExternal(ctx context.Context, account, currency string, externalBalance int64) (int64, error) {
	if externalBalance < 0 {
		return 0, ErrInvalidAmount
	}
	currency = normCurrency(currency)
	p := l.pair(account, currency)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := l.guard(ctx, p, account, currency); err != nil {
		return 0, err
	}

	delta := externalBalance - p.bal.Balance
	if delta == 0 {
		return 0, nil
	}
	if externalBalance < p.bal.Held {
		return 0, l.halt(p, account, currency,
			fmt.Sprintf("external balance %d below held %d", externalBalance, p.bal.Held))
	}

	kind := KindCredit
	if delta < 0 {
		kind = KindDebit
	}
	next := p.bal
	next.Balance = externalBalance
	e := newEntry(account, currency, delta, kind, "settlement network balance sync", "")
	if err := l.commit(ctx, p, next, e); err != nil {
		return 0, err
	}
	l.logger.Info("balance synced from settlement network",
		"account", account, "currency", currency, "delta", delta)
	return delta, nil
}

// ClearHalt re-enables mutations on a halted pair after manual
// reconciliation.
func (l *Ledger) ClearHalt(account, currency string) {
	p := l.pair(account, normCurrency(currency))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.halted = false
	p.loaded = false // force a fresh read of the repaired state
}

// guard loads the pair and refuses mutations on halted pairs. Caller holds
// p.mu.
func (l *Ledger) guard(ctx context.Context, p *pairState, account, currency string) error {
	if p.halted {
		return &InconsistencyError{Account: account, Currency: currency, Detail: "pair halted pending reconciliation"}
	}
	return l.load(ctx, p, account, currency)
}

// halt marks the pair unusable and returns the inconsistency error. Caller
// holds p.mu.
func (l *Ledger) halt(p *pairState, account, currency, detail string) error {
	p.halted = true
	err := &InconsistencyError{Account: account, Currency: currency, Detail: detail}
	l.logger.Error("ledger halted", "account", account, "currency", currency, "detail", detail)
	l.audit.Append(audit.Event{
		Category: audit.CategoryBilling,
		Message:  "ledger inconsistency: pair halted",
		Payload:  map[string]any{"account": account, "currency": currency, "detail": detail},
	})
	return err
}
