package store

import (
	"context"
	"path/filepath"
	"testing"

	"brokerage/internal/account"
	"brokerage/internal/domain"
)

// exerciseDAO runs the account.DAO contract against dao.
func exerciseDAO(t *testing.T, dao account.DAO) {
	t.Helper()
	ctx := context.Background()

	got, err := dao.GetAccount(ctx, "missingacct")
	if err != nil || got != nil {
		t.Fatalf("GetAccount(missing) = %v, %v; want nil, nil", got, err)
	}

	rec := &domain.Account{
		Name:         "testaccount",
		PasswordHash: []byte("hash"),
		Balance:      150000,
		FullName:     "Test Account",
		Address:      &domain.Address{Street: "1 Main St", City: "Seattle"},
		CreditCard:   &domain.CreditCard{Issuer: "Visa", Number: "4111"},
	}
	if err := dao.SetAccount(ctx, rec); err != nil {
		t.Fatalf("SetAccount: %v", err)
	}
	got, err = dao.GetAccount(ctx, "testaccount")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got == nil {
		t.Fatal("GetAccount returned nil after SetAccount")
	}
	if got.Balance != 150000 || got.FullName != "Test Account" || string(got.PasswordHash) != "hash" {
		t.Errorf("GetAccount = %+v, want stored record", got)
	}
	if got.Address == nil || got.Address.City != "Seattle" {
		t.Errorf("Address = %+v, want City Seattle", got.Address)
	}
	if got.CreditCard == nil || got.CreditCard.Number != "4111" {
		t.Errorf("CreditCard = %+v, want Number 4111", got.CreditCard)
	}

	rec.Balance = 90000
	rec.Address = nil
	if err := dao.SetAccount(ctx, rec); err != nil {
		t.Fatalf("SetAccount(update): %v", err)
	}
	got, _ = dao.GetAccount(ctx, "testaccount")
	if got.Balance != 90000 || got.Address != nil {
		t.Errorf("updated record = %+v, want balance 90000 and no address", got)
	}

	if err := dao.SetAccount(ctx, &domain.Account{Name: "otheraccount", PasswordHash: []byte("x"), Balance: 1}); err != nil {
		t.Fatalf("SetAccount(other): %v", err)
	}
	if err := dao.DeleteAccount(ctx, "testaccount"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if got, _ := dao.GetAccount(ctx, "testaccount"); got != nil {
		t.Errorf("GetAccount after delete = %+v, want nil", got)
	}
	if got, _ := dao.GetAccount(ctx, "otheraccount"); got == nil {
		t.Error("DeleteAccount removed an unrelated account")
	}

	if err := dao.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got, _ := dao.GetAccount(ctx, "otheraccount"); got != nil {
		t.Errorf("GetAccount after reset = %+v, want nil", got)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseDAO(t, s)
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := &domain.Account{Name: "testaccount", Balance: 100000}
	s.SetAccount(ctx, rec)
	rec.Balance = 1

	got, _ := s.GetAccount(ctx, "testaccount")
	if got.Balance != 100000 {
		t.Errorf("stored balance = %d, want %d", got.Balance, 100000)
	}
	got.Balance = 2
	again, _ := s.GetAccount(ctx, "testaccount")
	if again.Balance != 100000 {
		t.Errorf("stored balance after caller mutation = %d, want %d", again.Balance, 100000)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseDAO(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := s.SetAccount(ctx, &domain.Account{Name: "testaccount", PasswordHash: []byte("h"), Balance: 123456}); err != nil {
		t.Fatalf("SetAccount: %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	got, err := s.GetAccount(ctx, "testaccount")
	if err != nil || got == nil || got.Balance != 123456 {
		t.Errorf("GetAccount after reopen = %+v, %v; want balance 123456", got, err)
	}
}

func TestPebbleStore(t *testing.T) {
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	defer s.Close()
	exerciseDAO(t, s)
}

func TestPebbleStoreNames(t *testing.T) {
	ctx := context.Background()
	s, err := NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewPebbleStore: %v", err)
	}
	defer s.Close()

	for _, n := range []string{"zuluaccount", "alphaaccount"} {
		if err := s.SetAccount(ctx, &domain.Account{Name: n}); err != nil {
			t.Fatalf("SetAccount(%s): %v", n, err)
		}
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) != 2 || names[0] != "alphaaccount" || names[1] != "zuluaccount" {
		t.Errorf("Names() = %v, want [alphaaccount zuluaccount]", names)
	}
}

func TestKeyUpperBound(t *testing.T) {
	if got := string(keyUpperBound([]byte("acct:"))); got != "acct;" {
		t.Errorf("keyUpperBound(acct:) = %q, want %q", got, "acct;")
	}
	if got := keyUpperBound([]byte{0xff}); got != nil {
		t.Errorf("keyUpperBound(0xff) = %v, want nil", got)
	}
}

func TestOpenAccounts(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"", BackendMemory, BackendSQLite, BackendPebble} {
		path := filepath.Join(dir, "db-"+backend)
		dao, err := OpenAccounts(backend, path)
		if err != nil {
			t.Errorf("OpenAccounts(%q): %v", backend, err)
			continue
		}
		dao.Close()
	}
	if _, err := OpenAccounts("redis", ""); err == nil {
		t.Error("OpenAccounts(redis) succeeded, want error")
	}
}
