// Package transfer moves funds between accounts through the external
// settlement network. Each request walks a fixed state machine:
//
//	INITIATED → RESOLVED → HELD → SUBMITTED → CONFIRMED
//
// with FAILED terminal from any state. States never regress and no
// transition is retried; callers re-initiate a fresh request instead.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/borglife/wealthd/internal/audit"
	"github.com/borglife/wealthd/internal/keystore"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/metrics"
	"github.com/borglife/wealthd/internal/settle"
	"github.com/borglife/wealthd/internal/store"
)

// State is a transfer request's position in the lifecycle.
type State string

const (
	StateInitiated State = "INITIATED"
	StateResolved  State = "RESOLVED"
	StateHeld      State = "HELD"
	StateSubmitted State = "SUBMITTED"
	StateConfirmed State = "CONFIRMED"
	StateFailed    State = "FAILED"
)

// Request is the full record of one transfer attempt.
type Request struct {
	ID             string    `json:"id"`
	FromIdentifier string    `json:"from_identifier"`
	ToIdentifier   string    `json:"to_identifier"`
	FromAddress    string    `json:"from_address,omitempty"`
	ToAddress      string    `json:"to_address,omitempty"`
	Currency       string    `json:"currency"`
	Amount         int64     `json:"amount"`
	Fee            int64     `json:"fee,omitempty"`
	State          State     `json:"state"`
	TxRef          string    `json:"tx_ref,omitempty"`
	BlockRef       string    `json:"block_ref,omitempty"`
	FailureReason  string    `json:"failure_reason,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// advance moves the request forward. States never regress.
func (r *Request) advance(s State) {
	r.State = s
}

// Resolver is the slice of the persistent store the protocol needs for
// identity resolution.
type Resolver interface {
	LookupAddress(ctx context.Context, identifier string) (string, error)
	LookupIdentifier(ctx context.Context, address string) (string, error)
}

// Store is the persistence the protocol depends on: identity resolution
// plus the durable settlement journal.
type Store interface {
	Resolver
	JournalStore
}

// Service orchestrates transfers across the ledger, keystore, and
// settlement network.
type Service struct {
	ledger   *ledger.Ledger
	resolver Resolver
	keys     keystore.Keystore
	network  settle.Adapter
	audit    *audit.Log
	journal  *Journal
	logger   *slog.Logger

	defaultTimeout time.Duration
}

// NewService wires the protocol's collaborators. The store backs both
// identity resolution and the settlement journal, so half-settled transfers
// survive a restart. defaultTimeout bounds the settlement confirmation wait
// when the caller supplies none.
func NewService(l *ledger.Ledger, st Store, k keystore.Keystore, n settle.Adapter, a *audit.Log, logger *slog.Logger, defaultTimeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTimeout == 0 {
		defaultTimeout = 60 * time.Second
	}
	return &Service{
		ledger:         l,
		resolver:       st,
		keys:           k,
		network:        n,
		audit:          a,
		journal:        NewJournal(st, logger),
		logger:         logger,
		defaultTimeout: defaultTimeout,
	}
}

// Journal exposes the settlement journal for reconciliation.
func (s *Service) Journal() *Journal { return s.journal }

// Reconcile completes any half-settled transfers left in the journal.
func (s *Service) Reconcile(ctx context.Context) int {
	return s.journal.Reconcile(ctx, s.ledger, s.logger)
}

// Execute runs one transfer to a terminal state. The returned Request
// always reflects the terminal state, also when err is non-nil. timeout
// bounds the settlement wait; zero means the service default.
func (s *Service) Execute(ctx context.Context, fromID, toID, currency string, amount int64, timeout time.Duration) (*Request, error) {
	req := &Request{
		ID:             uuid.New().String(),
		FromIdentifier: fromID,
		ToIdentifier:   toID,
		Currency:       currency,
		Amount:         amount,
		State:          StateInitiated,
		StartedAt:      time.Now().UTC(),
	}

	if amount <= 0 {
		return req, s.fail(req, ErrInvalidAmount)
	}

	// Resolve both identifiers to canonical addresses.
	fromAddr, err := s.resolve(ctx, fromID)
	if err != nil {
		return req, s.fail(req, err)
	}
	toAddr, err := s.resolve(ctx, toID)
	if err != nil {
		return req, s.fail(req, err)
	}
	req.FromAddress = fromAddr
	req.ToAddress = toAddr
	req.advance(StateResolved)

	// The sender's credential must derive exactly the resolved address.
	cred, err := s.credential(ctx, fromID, fromAddr)
	if err != nil {
		return req, s.fail(req, err)
	}

	// Hold amount plus the externally estimated fee so the settlement leg
	// can never overdraw the sender.
	fee, err := s.network.EstimateFee(ctx, fromAddr, toAddr, amount)
	if err != nil {
		return req, s.fail(req, &SubmissionError{Err: fmt.Errorf("estimate fee: %w", err)})
	}
	req.Fee = fee
	heldTotal := amount + fee

	if err := s.ledger.Hold(ctx, fromAddr, currency, heldTotal, req.ID); err != nil {
		return req, s.fail(req, err)
	}
	req.advance(StateHeld)

	// Submit with a bounded wait. Any failure here releases the hold.
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	subCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req.advance(StateSubmitted)
	result, err := s.network.SubmitTransfer(subCtx, cred, toAddr, amount)
	if err != nil {
		if relErr := s.ledger.Release(ctx, fromAddr, currency, heldTotal, req.ID); relErr != nil {
			s.logger.Error("release after failed submission failed",
				"request", req.ID, "err", relErr)
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(subCtx.Err(), context.DeadlineExceeded) {
			return req, s.fail(req, ErrTimeout)
		}
		return req, s.fail(req, &SubmissionError{Err: err})
	}
	req.TxRef = result.TxRef
	req.BlockRef = result.BlockRef

	// The network leg is final; journal the local pair durably so a crash
	// between settle and credit is recoverable. The caller going away must
	// not abort the local leg either.
	finCtx := context.WithoutCancel(ctx)
	s.journal.begin(finCtx, store.JournalRecord{
		RequestID:   req.ID,
		FromAddress: fromAddr,
		ToAddress:   toAddr,
		Currency:    currency,
		Amount:      amount,
		HeldTotal:   heldTotal,
	})

	if err := s.ledger.Settle(finCtx, fromAddr, currency, heldTotal, req.ID); err != nil {
		s.logger.Error("settle failed after confirmed submission; journaled for reconciliation",
			"request", req.ID, "err", err)
		return req, s.fail(req, err)
	}
	s.journal.markSettled(finCtx, req.ID)

	if _, err := s.ledger.Credit(finCtx, toAddr, currency, amount, "transfer received", req.ID); err != nil {
		s.logger.Error("credit failed after settle; journaled for reconciliation",
			"request", req.ID, "err", err)
		return req, s.fail(req, err)
	}
	s.journal.markCredited(finCtx, req.ID)
	s.journal.complete(finCtx, req.ID)

	req.advance(StateConfirmed)
	req.FinishedAt = time.Now().UTC()
	metrics.Transfers.WithLabelValues(string(StateConfirmed)).Inc()
	s.audit.Append(audit.Event{
		Category: audit.CategoryTransfer,
		Message:  "transfer confirmed",
		Payload:  requestPayload(req),
	})
	return req, nil
}

// resolve maps an identifier to its canonical address. An identifier that
// is already a known address resolves to itself; unknown identifiers fail.
func (s *Service) resolve(ctx context.Context, identifier string) (string, error) {
	addr, err := s.resolver.LookupAddress(ctx, identifier)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("resolve %q: %w", identifier, err)
	}
	// Not an alias; accept it if the reverse index knows it as an address.
	if _, err := s.resolver.LookupIdentifier(ctx, identifier); err == nil {
		return identifier, nil
	}
	return "", &ResolutionError{Identifier: identifier}
}

// credential fetches the sender's credential, trying the original
// identifier first and the resolved address second, and verifies the
// derived address.
func (s *Service) credential(ctx context.Context, identifier, address string) (keystore.Credential, error) {
	cred, err := s.keys.RetrieveCredential(ctx, identifier)
	if errors.Is(err, keystore.ErrNotFound) && identifier != address {
		cred, err = s.keys.RetrieveCredential(ctx, address)
	}
	if err != nil {
		if errors.Is(err, keystore.ErrNotFound) {
			return nil, ErrCredentialMismatch
		}
		return nil, fmt.Errorf("retrieve credential: %w", err)
	}
	if cred.Address() != address {
		return nil, ErrCredentialMismatch
	}
	return cred, nil
}

// fail records the terminal FAILED state with full request context.
func (s *Service) fail(req *Request, err error) error {
	req.advance(StateFailed)
	req.FailureReason = err.Error()
	req.FinishedAt = time.Now().UTC()
	metrics.Transfers.WithLabelValues(string(StateFailed)).Inc()
	s.audit.Append(audit.Event{
		Category: audit.CategoryTransfer,
		Message:  "transfer failed",
		Payload:  requestPayload(req),
	})
	return err
}

func requestPayload(req *Request) map[string]any {
	p := map[string]any{
		"request_id": req.ID,
		"from":       req.FromIdentifier,
		"to":         req.ToIdentifier,
		"currency":   req.Currency,
		"amount":     req.Amount,
		"state":      string(req.State),
	}
	if req.FromAddress != "" {
		p["from_address"] = req.FromAddress
	}
	if req.ToAddress != "" {
		p["to_address"] = req.ToAddress
	}
	if req.Fee != 0 {
		p["fee"] = req.Fee
	}
	if req.TxRef != "" {
		p["tx_ref"] = req.TxRef
		p["block_ref"] = req.BlockRef
	}
	if req.FailureReason != "" {
		p["failure_reason"] = req.FailureReason
	}
	return p
}
