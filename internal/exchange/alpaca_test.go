package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"brokerage/internal/domain"
	"brokerage/internal/util"
)

type fakeTrading struct {
	mu     sync.Mutex
	open   bool
	fill   decimal.Decimal
	placed []alpacaapi.PlaceOrderRequest
	polls  int
}

func (f *fakeTrading) GetClock() (*alpacaapi.Clock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &alpacaapi.Clock{IsOpen: f.open}, nil
}

func (f *fakeTrading) PlaceOrder(req alpacaapi.PlaceOrderRequest) (*alpacaapi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	return &alpacaapi.Order{ID: "alpaca-1", Status: "new"}, nil
}

func (f *fakeTrading) GetOrder(id string) (*alpacaapi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	fill := f.fill
	return &alpacaapi.Order{ID: id, Status: "filled", FilledAvgPrice: &fill}, nil
}

type fakeData struct {
	prices map[string]float64
}

func (f *fakeData) GetLatestTrade(symbol string, _ marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return nil, errors.New("no trades")
	}
	return &marketdata.Trade{Price: p}, nil
}

func newTestAlpaca(trading *fakeTrading, data *fakeData) *AlpacaExchange {
	return newAlpacaExchange(trading, data, AlpacaOptions{
		Tickers:   []string{"AAPL", "MSFT"},
		RateLimit: 60000,
	}, util.Discard())
}

func TestAlpacaRefresh(t *testing.T) {
	trading := &fakeTrading{open: true}
	data := &fakeData{prices: map[string]float64{"AAPL": 190.125, "MSFT": 420.5}}
	a := newTestAlpaca(trading, data)
	l := &eventLog{}
	a.AddListener(l)

	if err := a.refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !a.IsOpen() {
		t.Error("IsOpen() = false after open clock")
	}
	q, err := a.Quote("AAPL")
	if err != nil {
		t.Fatalf("Quote(AAPL): %v", err)
	}
	if q.Price != 19013 {
		t.Errorf("Quote(AAPL).Price = %d, want %d", q.Price, 19013)
	}
	if n := len(l.snapshot()); n != 3 {
		t.Errorf("first refresh fired %d events, want 3", n)
	}

	// Unchanged state fires nothing.
	if err := a.refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if n := len(l.snapshot()); n != 3 {
		t.Errorf("unchanged refresh fired %d events total, want 3", n)
	}

	if _, err := a.Quote("IBM"); !errors.Is(err, ErrUnknownTicker) {
		t.Errorf("Quote(IBM) error = %v, want ErrUnknownTicker", err)
	}
}

func TestAlpacaExecuteTrade(t *testing.T) {
	trading := &fakeTrading{fill: decimal.RequireFromString("190.01")}
	data := &fakeData{prices: map[string]float64{"AAPL": 190, "MSFT": 420}}
	a := newTestAlpaca(trading, data)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order := domain.NewMarketBuy("testaccount", "AAPL", 4)
	if price, err := a.ExecuteTrade(ctx, order); err != nil || price != 0 {
		t.Errorf("closed ExecuteTrade = %d, %v; want 0, nil", price, err)
	}

	trading.open = true
	if err := a.refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	price, err := a.ExecuteTrade(ctx, order)
	if err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	if price != 19001 {
		t.Errorf("ExecuteTrade price = %d, want %d", price, 19001)
	}
	if len(trading.placed) != 1 {
		t.Fatalf("placed %d orders, want 1", len(trading.placed))
	}
	req := trading.placed[0]
	if req.Side != alpacaapi.Buy || req.Symbol != "AAPL" || !req.Qty.Equal(decimal.NewFromInt(4)) {
		t.Errorf("placed request = %+v, want buy 4 AAPL", req)
	}
}
