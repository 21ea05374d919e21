package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"brokerage/internal/domain"
)

const accountPrefix = "acct:"

// PebbleStore implements account.DAO on a Pebble key-value store. Each
// account is a JSON value under acct:<name>.
type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens a Pebble database in dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}

// GetAccount returns the named record, or nil if absent.
func (s *PebbleStore) GetAccount(_ context.Context, name string) (*domain.Account, error) {
	data, closer, err := s.db.Get(accountKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", name, err)
	}
	defer closer.Close()

	var a domain.Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account %s: %w", name, err)
	}
	return &a, nil
}

// SetAccount inserts or replaces the record.
func (s *PebbleStore) SetAccount(_ context.Context, acct *domain.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acct.Name), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save account %s: %w", acct.Name, err)
	}
	return nil
}

// DeleteAccount removes the named record.
func (s *PebbleStore) DeleteAccount(_ context.Context, name string) error {
	if err := s.db.Delete(accountKey(name), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete account %s: %w", name, err)
	}
	return nil
}

// Reset removes every account key.
func (s *PebbleStore) Reset(_ context.Context) error {
	prefix := []byte(accountPrefix)
	if err := s.db.DeleteRange(prefix, keyUpperBound(prefix), pebble.Sync); err != nil {
		return fmt.Errorf("failed to reset accounts: %w", err)
	}
	return nil
}

// Names lists every stored account name in key order.
func (s *PebbleStore) Names() ([]string, error) {
	prefix := []byte(accountPrefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for iter.First(); iter.Valid(); iter.Next() {
		names = append(names, string(iter.Key()[len(prefix):]))
	}
	return names, iter.Error()
}

func accountKey(name string) []byte {
	return []byte(accountPrefix + name)
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix.
func keyUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
