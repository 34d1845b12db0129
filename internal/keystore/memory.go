package keystore

import (
	"context"
	"sync"
)

// StaticCredential is a fixed-address credential for in-memory keystores
// and tests.
type StaticCredential struct {
	Addr string
}

func (c StaticCredential) Address() string { return c.Addr }

// Memory is an in-process Keystore keyed by identifier.
type Memory struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewMemory creates an empty in-memory keystore.
func NewMemory() *Memory {
	return &Memory{creds: make(map[string]Credential)}
}

// Put stores a credential under one or more identifiers (alias and
// address commonly both point at the same credential).
func (m *Memory) Put(cred Credential, identifiers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range identifiers {
		m.creds[id] = cred
	}
}

func (m *Memory) RetrieveCredential(_ context.Context, identifier string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cred, ok := m.creds[identifier]
	if !ok {
		return nil, ErrNotFound
	}
	return cred, nil
}
