package broker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"brokerage/internal/account"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
	"brokerage/internal/queue"
	"brokerage/internal/store"
	"brokerage/internal/util"
)

const (
	testAccount = "testaccount"
	testPass    = "password1"
	startCash   = 10000000

	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var modes = []queue.Mode{queue.ModeInline, queue.ModeDedicated, queue.ModePooled}

// hookedExchange wraps the simulator so tests can fail or stall individual
// trades.
type hookedExchange struct {
	*exchange.Simulator

	mu    sync.Mutex
	fail  map[uint64]bool
	block chan struct{}
}

func (h *hookedExchange) failOrder(id uint64) {
	h.mu.Lock()
	h.fail[id] = true
	h.mu.Unlock()
}

func (h *hookedExchange) ExecuteTrade(ctx context.Context, o *domain.Order) (int64, error) {
	h.mu.Lock()
	fail, block := h.fail[o.ID], h.block
	h.mu.Unlock()
	if block != nil {
		<-block
	}
	if fail {
		return 0, errors.New("exchange unavailable")
	}
	return h.Simulator.ExecuteTrade(ctx, o)
}

// closeCounter records Close calls on the account store.
type closeCounter struct {
	*account.Manager

	mu     sync.Mutex
	closes int
}

func (c *closeCounter) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	return c.Manager.Close()
}

func (c *closeCounter) closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// fillLog is a FillRecorder collecting fills.
type fillLog struct {
	mu    sync.Mutex
	fills []domain.Fill
}

func (f *fillLog) RecordFill(_ context.Context, fill domain.Fill) error {
	f.mu.Lock()
	f.fills = append(f.fills, fill)
	f.mu.Unlock()
	return nil
}

func (f *fillLog) snapshot() []domain.Fill {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Fill(nil), f.fills...)
}

type fixture struct {
	broker   *QueueBroker
	ex       *hookedExchange
	accounts *closeCounter
	fills    *fillLog
}

func newFixture(t *testing.T, mode queue.Mode) *fixture {
	t.Helper()
	ex := &hookedExchange{
		Simulator: exchange.NewSimulator(
			domain.Quote{Ticker: "AAPL", Price: 19000},
			domain.Quote{Ticker: "MSFT", Price: 42000},
		),
		fail: make(map[uint64]bool),
	}
	accounts := &closeCounter{
		Manager: account.NewManager(store.NewMemoryStore(), util.Discard(), account.WithHashCost(bcrypt.MinCost)),
	}
	fills := &fillLog{}

	f := Factory{Mode: mode, Workers: 4, ShutdownTimeout: 2 * time.Second, Logger: util.Discard()}
	b, err := f.NewBroker("testbroker", accounts, ex, fills)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, err = b.CreateAccount(context.Background(), testAccount, testPass, startCash)
	require.NoError(t, err)
	return &fixture{broker: b, ex: ex, accounts: accounts, fills: fills}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	a, err := f.broker.GetAccount(context.Background(), testAccount, testPass)
	require.NoError(t, err)
	return a.Balance()
}

func (f *fixture) waitExecuted(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.ex.Executed()) >= n }, waitFor, tick,
		"expected %d executed trades", n)
}

func executedIDs(fills []domain.Fill) []uint64 {
	ids := make([]uint64, len(fills))
	for i, f := range fills {
		ids[i] = f.OrderID
	}
	return ids
}

func forEachMode(t *testing.T, fn func(t *testing.T, mode queue.Mode)) {
	t.Helper()
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) { fn(t, mode) })
	}
}
