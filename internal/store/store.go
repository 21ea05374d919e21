// Package store provides persistence backends: account DAOs over memory,
// SQLite and Pebble, and a Parquet journal of executed fills.
package store

import (
	"context"
	"fmt"
	"sync"

	"brokerage/internal/account"
	"brokerage/internal/domain"
)

// Compile-time interface checks.
var _ account.DAO = (*MemoryStore)(nil)
var _ account.DAO = (*SQLiteStore)(nil)
var _ account.DAO = (*PebbleStore)(nil)

// Account backends accepted by OpenAccounts.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

// OpenAccounts opens the named account backend. path is the SQLite file or
// the Pebble directory and is ignored for the memory backend.
func OpenAccounts(backend, path string) (account.DAO, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendPebble:
		return NewPebbleStore(path)
	default:
		return nil, fmt.Errorf("unknown account backend %q", backend)
	}
}

// MemoryStore keeps accounts in a map. Records are copied on the way in and
// out so callers never share state with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*domain.Account)}
}

// GetAccount returns a copy of the named record, or nil if absent.
func (s *MemoryStore) GetAccount(_ context.Context, name string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[name]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

// SetAccount inserts or replaces the record.
func (s *MemoryStore) SetAccount(_ context.Context, acct *domain.Account) error {
	s.mu.Lock()
	s.accounts[acct.Name] = acct.Clone()
	s.mu.Unlock()
	return nil
}

// DeleteAccount removes the named record.
func (s *MemoryStore) DeleteAccount(_ context.Context, name string) error {
	s.mu.Lock()
	delete(s.accounts, name)
	s.mu.Unlock()
	return nil
}

// Reset removes every record.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	s.accounts = make(map[string]*domain.Account)
	s.mu.Unlock()
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
