package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"brokerage/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// SQLiteStore implements account.DAO backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		name          TEXT PRIMARY KEY,
		password_hash BLOB NOT NULL,
		balance       INTEGER NOT NULL,
		full_name     TEXT NOT NULL DEFAULT '',
		phone         TEXT NOT NULL DEFAULT '',
		email         TEXT NOT NULL DEFAULT '',
		address       TEXT,
		credit_card   TEXT
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating %s: %w", dbPath, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetAccount returns the named record, or nil if absent.
func (s *SQLiteStore) GetAccount(ctx context.Context, name string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, password_hash, balance, full_name, phone, email, address, credit_card
		 FROM accounts WHERE name = ?`, name)

	var (
		a          domain.Account
		addr, card sql.NullString
	)
	err := row.Scan(&a.Name, &a.PasswordHash, &a.Balance, &a.FullName, &a.Phone, &a.Email, &addr, &card)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting account %s: %w", name, err)
	}
	if addr.Valid {
		a.Address = &domain.Address{}
		if err := json.Unmarshal([]byte(addr.String), a.Address); err != nil {
			return nil, fmt.Errorf("decoding address of %s: %w", name, err)
		}
	}
	if card.Valid {
		a.CreditCard = &domain.CreditCard{}
		if err := json.Unmarshal([]byte(card.String), a.CreditCard); err != nil {
			return nil, fmt.Errorf("decoding credit card of %s: %w", name, err)
		}
	}
	return &a, nil
}

// SetAccount inserts or replaces the record.
func (s *SQLiteStore) SetAccount(ctx context.Context, acct *domain.Account) error {
	addr, err := nullJSON(acct.Address, acct.Address == nil)
	if err != nil {
		return err
	}
	card, err := nullJSON(acct.CreditCard, acct.CreditCard == nil)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO accounts (name, password_hash, balance, full_name, phone, email, address, credit_card)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			password_hash = excluded.password_hash,
			balance       = excluded.balance,
			full_name     = excluded.full_name,
			phone         = excluded.phone,
			email         = excluded.email,
			address       = excluded.address,
			credit_card   = excluded.credit_card`,
		acct.Name, acct.PasswordHash, acct.Balance, acct.FullName, acct.Phone, acct.Email, addr, card)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", acct.Name, err)
	}
	return nil
}

// DeleteAccount removes the named record.
func (s *SQLiteStore) DeleteAccount(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting account %s: %w", name, err)
	}
	return nil
}

// Reset removes every record.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM accounts`); err != nil {
		return fmt.Errorf("resetting accounts: %w", err)
	}
	return nil
}

func nullJSON(v any, isNil bool) (sql.NullString, error) {
	if isNil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
