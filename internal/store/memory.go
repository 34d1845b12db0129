package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and single-node deployments.
type Memory struct {
	mu           sync.RWMutex
	balances     map[string]BalanceState // "account/currency" → state
	transactions []Transaction
	addresses    map[string]string // identifier → address
	identifiers  map[string]string // address → identifier
	journal      map[string]JournalRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		balances:    make(map[string]BalanceState),
		addresses:   make(map[string]string),
		identifiers: make(map[string]string),
		journal:     make(map[string]JournalRecord),
	}
}

// Currency case is normalized by the ledger before any store call; keys use
// the currency as given.
func balanceKey(account, currency string) string {
	return account + "/" + currency
}

// RegisterAlias seeds the identity index with identifier → address.
func (m *Memory) RegisterAlias(identifier, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[identifier] = address
	m.identifiers[address] = identifier
}

func (m *Memory) GetBalance(_ context.Context, account, currency string) (BalanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.balances[balanceKey(account, currency)]
	if !ok {
		return BalanceState{}, ErrNotFound
	}
	return st, nil
}

func (m *Memory) PutBalance(_ context.Context, account, currency string, state BalanceState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey(account, currency)] = state
	return nil
}

func (m *Memory) AppendTransaction(_ context.Context, tx Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions = append(m.transactions, tx)
	return nil
}

// Transactions returns a copy of the recorded entries, oldest first.
func (m *Memory) Transactions() []Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Transaction, len(m.transactions))
	copy(out, m.transactions)
	return out
}

func (m *Memory) LookupAddress(_ context.Context, identifier string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.addresses[identifier]
	if !ok {
		return "", ErrNotFound
	}
	return addr, nil
}

func (m *Memory) LookupIdentifier(_ context.Context, address string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.identifiers[address]
	if !ok {
		return "", ErrNotFound
	}
	return id, nil
}

func (m *Memory) PutJournalRecord(_ context.Context, rec JournalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal[rec.RequestID] = rec
	return nil
}

func (m *Memory) DeleteJournalRecord(_ context.Context, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.journal, requestID)
	return nil
}

func (m *Memory) ListJournalRecords(_ context.Context) ([]JournalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]JournalRecord, 0, len(m.journal))
	for _, rec := range m.journal {
		out = append(out, rec)
	}
	return out, nil
}
