package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"brokerage/internal/domain"
)

// Manager creates, loads and deletes accounts over a DAO.
type Manager struct {
	dao      DAO
	hashCost int
	log      *slog.Logger

	// mu serializes every read-modify-write of a persisted record.
	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithHashCost sets the bcrypt cost used for new passwords.
func WithHashCost(cost int) Option {
	return func(m *Manager) { m.hashCost = cost }
}

// NewManager creates a Manager persisting through dao.
func NewManager(dao DAO, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		dao:      dao,
		hashCost: bcrypt.DefaultCost,
		log:      log.With("component", "accounts"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// GetAccount loads the named account.
func (m *Manager) GetAccount(ctx context.Context, name string) (*Account, error) {
	rec, err := m.load(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Account{mgr: m, rec: rec}, nil
}

// CreateAccount creates an account with the given opening balance in cents.
// Names shorter than MinNameLength and balances under MinBalance are
// rejected.
func (m *Manager) CreateAccount(ctx context.Context, name, password string, balance int64) (*Account, error) {
	if len(name) < MinNameLength {
		return nil, fmt.Errorf("%w: name %q shorter than %d characters", ErrInvalidAccount, name, MinNameLength)
	}
	if balance < MinBalance {
		return nil, fmt.Errorf("%w: opening balance %d below minimum %d", ErrInvalidAccount, balance, MinBalance)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password for %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.dao.GetAccount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("checking account %s: %w", name, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("create %s: %w", name, ErrExists)
	}

	rec := &domain.Account{Name: name, PasswordHash: hash, Balance: balance}
	if err := m.dao.SetAccount(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing account %s: %w", name, err)
	}
	m.log.Info("account created", "account", name, "balance", balance)
	return &Account{mgr: m, rec: rec.Clone()}, nil
}

// DeleteAccount removes the named account.
func (m *Manager) DeleteAccount(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.load(ctx, name); err != nil {
		return err
	}
	if err := m.dao.DeleteAccount(ctx, name); err != nil {
		return fmt.Errorf("deleting account %s: %w", name, err)
	}
	m.log.Info("account deleted", "account", name)
	return nil
}

// Persist stores the profile fields of acct. The balance and password hash
// are left as stored.
func (m *Manager) Persist(ctx context.Context, acct *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(ctx, acct.Name)
	if err != nil {
		return err
	}
	rec.FullName = acct.FullName
	rec.Phone = acct.Phone
	rec.Email = acct.Email
	profile := acct.Clone()
	rec.Address = profile.Address
	rec.CreditCard = profile.CreditCard
	if err := m.dao.SetAccount(ctx, rec); err != nil {
		return fmt.Errorf("storing account %s: %w", acct.Name, err)
	}
	return nil
}

// ValidateLogin checks password against the stored hash. Unknown names and
// wrong passwords both yield ErrInvalidLogin.
func (m *Manager) ValidateLogin(ctx context.Context, name, password string) error {
	rec, err := m.dao.GetAccount(ctx, name)
	if err != nil {
		return fmt.Errorf("loading account %s: %w", name, err)
	}
	if rec == nil {
		return fmt.Errorf("login %s: %w", name, ErrInvalidLogin)
	}
	if err := bcrypt.CompareHashAndPassword(rec.PasswordHash, []byte(password)); err != nil {
		return fmt.Errorf("login %s: %w", name, ErrInvalidLogin)
	}
	return nil
}

// Reset removes every account.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dao.Reset(ctx)
}

// Close releases the DAO.
func (m *Manager) Close() error {
	return m.dao.Close()
}

// apply adds delta to the stored balance of name under mu and returns the
// updated record.
func (m *Manager) apply(ctx context.Context, name string, delta int64) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.load(ctx, name)
	if err != nil {
		return nil, err
	}
	rec.Balance += delta
	if err := m.dao.SetAccount(ctx, rec); err != nil {
		return nil, fmt.Errorf("storing balance for %s: %w", name, err)
	}
	return rec.Clone(), nil
}

func (m *Manager) load(ctx context.Context, name string) (*domain.Account, error) {
	rec, err := m.dao.GetAccount(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", name, err)
	}
	if rec == nil {
		return nil, fmt.Errorf("account %s: %w", name, ErrNotFound)
	}
	return rec, nil
}
