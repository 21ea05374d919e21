package account_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"brokerage/internal/account"
	"brokerage/internal/domain"
	"brokerage/internal/store"
	"brokerage/internal/util"
)

func newManager(t *testing.T) *account.Manager {
	t.Helper()
	m := account.NewManager(store.NewMemoryStore(), util.Discard(), account.WithHashCost(bcrypt.MinCost))
	t.Cleanup(func() { m.Close() })
	return m
}

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	a, err := m.CreateAccount(ctx, "testaccount", "secret", 150000)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if a.Name() != "testaccount" || a.Balance() != 150000 {
		t.Errorf("created account = %s/%d, want testaccount/150000", a.Name(), a.Balance())
	}
	if string(a.Record().PasswordHash) == "secret" {
		t.Error("password stored in clear text")
	}

	if _, err := m.CreateAccount(ctx, "testaccount", "other", 200000); !errors.Is(err, account.ErrExists) {
		t.Errorf("duplicate CreateAccount error = %v, want ErrExists", err)
	}
}

func TestCreateAccountRules(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	tests := []struct {
		name    string
		balance int64
	}{
		{"short", 150000},
		{"1234567", account.MinBalance},
		{"longenough", account.MinBalance - 1},
	}
	for _, tt := range tests {
		if _, err := m.CreateAccount(ctx, tt.name, "pw", tt.balance); !errors.Is(err, account.ErrInvalidAccount) {
			t.Errorf("CreateAccount(%q, %d) error = %v, want ErrInvalidAccount", tt.name, tt.balance, err)
		}
	}

	if _, err := m.CreateAccount(ctx, "12345678", "pw", account.MinBalance); err != nil {
		t.Errorf("CreateAccount at the minimums: %v", err)
	}
}

func TestGetAndDeleteAccount(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	if _, err := m.GetAccount(ctx, "nobodyhere"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("GetAccount(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := m.CreateAccount(ctx, "testaccount", "pw", 100000); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	a, err := m.GetAccount(ctx, "testaccount")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a.Balance() != 100000 {
		t.Errorf("Balance() = %d, want %d", a.Balance(), 100000)
	}

	if err := m.DeleteAccount(ctx, "testaccount"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if err := m.DeleteAccount(ctx, "testaccount"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("second DeleteAccount error = %v, want ErrNotFound", err)
	}
}

func TestValidateLogin(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if _, err := m.CreateAccount(ctx, "testaccount", "correct horse", 100000); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := m.ValidateLogin(ctx, "testaccount", "correct horse"); err != nil {
		t.Errorf("ValidateLogin(correct) = %v, want nil", err)
	}
	if err := m.ValidateLogin(ctx, "testaccount", "battery staple"); !errors.Is(err, account.ErrInvalidLogin) {
		t.Errorf("ValidateLogin(wrong) = %v, want ErrInvalidLogin", err)
	}
	if err := m.ValidateLogin(ctx, "nobodyhere", "x"); !errors.Is(err, account.ErrInvalidLogin) {
		t.Errorf("ValidateLogin(missing) = %v, want ErrInvalidLogin", err)
	}
}

func TestReflectOrder(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	a, err := m.CreateAccount(ctx, "testaccount", "pw", 1000000)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	if err := a.ReflectOrder(ctx, domain.NewMarketBuy("testaccount", "AAPL", 10), 19000); err != nil {
		t.Fatalf("ReflectOrder(buy): %v", err)
	}
	if got := a.Balance(); got != 810000 {
		t.Errorf("Balance after buy = %d, want %d", got, 810000)
	}
	if err := a.ReflectOrder(ctx, domain.NewMarketSell("testaccount", "AAPL", 5), 20000); err != nil {
		t.Fatalf("ReflectOrder(sell): %v", err)
	}
	if got := a.Balance(); got != 910000 {
		t.Errorf("Balance after sell = %d, want %d", got, 910000)
	}

	reloaded, err := m.GetAccount(ctx, "testaccount")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if reloaded.Balance() != 910000 {
		t.Errorf("persisted balance = %d, want %d", reloaded.Balance(), 910000)
	}
}

func TestReflectOrderConcurrent(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if _, err := m.CreateAccount(ctx, "testaccount", "pw", 1000000); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate handles, as separate dispatch goroutines would load.
			a, err := m.GetAccount(ctx, "testaccount")
			if err != nil {
				t.Errorf("GetAccount: %v", err)
				return
			}
			if err := a.ReflectOrder(ctx, domain.NewMarketSell("testaccount", "AAPL", 1), 100); err != nil {
				t.Errorf("ReflectOrder: %v", err)
			}
		}()
	}
	wg.Wait()

	a, _ := m.GetAccount(ctx, "testaccount")
	if got, want := a.Balance(), int64(1000000+n*100); got != want {
		t.Errorf("Balance after concurrent fills = %d, want %d", got, want)
	}
}

func TestReflectOrderDeleted(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	a, err := m.CreateAccount(ctx, "testaccount", "pw", 100000)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := m.DeleteAccount(ctx, "testaccount"); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if err := a.ReflectOrder(ctx, domain.NewMarketBuy("testaccount", "AAPL", 1), 1); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("ReflectOrder on deleted account = %v, want ErrNotFound", err)
	}
}

func TestPersistProfile(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	a, err := m.CreateAccount(ctx, "testaccount", "pw", 100000)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	rec := a.Record()
	rec.FullName = "Test Person"
	rec.Email = "test@example.com"
	rec.Address = &domain.Address{City: "Seattle"}
	rec.Balance = 999999999
	if err := m.Persist(ctx, rec); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	got, _ := m.GetAccount(ctx, "testaccount")
	r := got.Record()
	if r.FullName != "Test Person" || r.Email != "test@example.com" || r.Address == nil || r.Address.City != "Seattle" {
		t.Errorf("persisted profile = %+v", r)
	}
	if r.Balance != 100000 {
		t.Errorf("Persist changed balance to %d", r.Balance)
	}
	if err := m.ValidateLogin(ctx, "testaccount", "pw"); err != nil {
		t.Errorf("Persist broke login: %v", err)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	if _, err := m.CreateAccount(ctx, "testaccount", "pw", 100000); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := m.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := m.GetAccount(ctx, "testaccount"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("GetAccount after Reset error = %v, want ErrNotFound", err)
	}
}
