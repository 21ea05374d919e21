// Package account manages brokerage accounts: creation rules, login
// validation, and balance updates for executed orders. Persistence is
// delegated to a DAO.
package account

import (
	"context"
	"errors"
	"sync"

	"brokerage/internal/domain"
)

var (
	// ErrNotFound is returned for operations on an account that does not exist.
	ErrNotFound = errors.New("account: not found")

	// ErrExists is returned when creating an account whose name is taken.
	ErrExists = errors.New("account: already exists")

	// ErrInvalidLogin is returned when a name and password do not match.
	ErrInvalidLogin = errors.New("account: invalid login")

	// ErrInvalidAccount is returned when a new account breaks the creation
	// rules.
	ErrInvalidAccount = errors.New("account: invalid account")
)

// Creation rules.
const (
	MinNameLength = 8
	MinBalance    = 100000 // cents
)

// DAO persists account records. GetAccount returns nil, nil for a missing
// account. Implementations must be safe for concurrent use.
type DAO interface {
	GetAccount(ctx context.Context, name string) (*domain.Account, error)
	SetAccount(ctx context.Context, acct *domain.Account) error
	DeleteAccount(ctx context.Context, name string) error
	Reset(ctx context.Context) error
	Close() error
}

// Account is a handle on one persisted account. Balance updates go through
// the owning Manager so concurrent fills are applied one at a time.
type Account struct {
	mgr *Manager

	mu  sync.RWMutex
	rec *domain.Account
}

// Name returns the account name.
func (a *Account) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.Name
}

// Balance returns the last known balance in cents.
func (a *Account) Balance() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.Balance
}

// Record returns a copy of the last known account record.
func (a *Account) Record() *domain.Account {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rec.Clone()
}

// ReflectOrder applies the balance effect of order executed at price and
// persists the result.
func (a *Account) ReflectOrder(ctx context.Context, order *domain.Order, price int64) error {
	rec, err := a.mgr.apply(ctx, a.Name(), order.Value(price))
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.rec = rec
	a.mu.Unlock()
	return nil
}
