// Package store defines the persistent backing for ledger state and the
// identity index. The ledger treats its in-memory balances as a cache over
// this store and writes through on every mutation before acknowledging.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown accounts, identifiers, or addresses.
var ErrNotFound = errors.New("store: not found")

// BalanceState is the durable per-(account,currency) state.
type BalanceState struct {
	Balance int64 // total, minor units
	Held    int64 // reserved but unsettled, minor units
}

// Transaction is the durable form of a ledger entry.
type Transaction struct {
	ID            string
	Account       string
	Currency      string
	Delta         int64
	Kind          string
	Reason        string
	CorrelationID string
	Timestamp     time.Time
}

// JournalRecord is the durable trace of a confirmed transfer's local
// settle+credit pair. A record that survives a restart marks a half-settled
// transfer the reconciliation pass must finish.
type JournalRecord struct {
	RequestID   string
	FromAddress string
	ToAddress   string
	Currency    string
	Amount      int64 // credited to the receiver
	HeldTotal   int64 // amount + fee, settled on the sender
	Settled     bool
	Credited    bool
}

// Store is the external persistence collaborator. Implementations must make
// each method atomic on its own; cross-call atomicity is the ledger's job.
type Store interface {
	// GetBalance returns the state for (account, currency), or ErrNotFound.
	GetBalance(ctx context.Context, account, currency string) (BalanceState, error)
	// PutBalance overwrites the state for (account, currency).
	PutBalance(ctx context.Context, account, currency string, state BalanceState) error
	// AppendTransaction durably records a ledger entry.
	AppendTransaction(ctx context.Context, tx Transaction) error
	// LookupAddress resolves a legacy identifier (alias) to its canonical
	// address, or ErrNotFound.
	LookupAddress(ctx context.Context, identifier string) (string, error)
	// LookupIdentifier is the reverse index: canonical address to alias.
	LookupIdentifier(ctx context.Context, address string) (string, error)
	// PutJournalRecord upserts a settlement journal record by request ID.
	PutJournalRecord(ctx context.Context, rec JournalRecord) error
	// DeleteJournalRecord removes a completed journal record.
	DeleteJournalRecord(ctx context.Context, requestID string) error
	// ListJournalRecords returns every pending journal record.
	ListJournalRecords(ctx context.Context) ([]JournalRecord, error)
}
