package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	alpacaapi "github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"

	"brokerage/internal/domain"
	"brokerage/internal/util"
)

// Compile-time interface check.
var _ Exchange = (*AlpacaExchange)(nil)

// tradingAPI is the subset of the Alpaca trading client used here.
type tradingAPI interface {
	GetClock() (*alpacaapi.Clock, error)
	PlaceOrder(req alpacaapi.PlaceOrderRequest) (*alpacaapi.Order, error)
	GetOrder(orderID string) (*alpacaapi.Order, error)
}

// marketDataAPI is the subset of the Alpaca market data client used here.
type marketDataAPI interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaOptions configures an AlpacaExchange.
type AlpacaOptions struct {
	APIKey       string
	APISecret    string
	BaseURL      string
	DataURL      string
	Tickers      []string
	PollInterval time.Duration
	RateLimit    int // requests per minute
}

// AlpacaExchange implements Exchange on top of the Alpaca brokerage API.
// Market state and prices are polled; changes are reported to listeners.
type AlpacaExchange struct {
	trading  tradingAPI
	data     marketDataAPI
	tickers  []string
	interval time.Duration
	limiter  *util.RateLimiter
	log      *slog.Logger

	mu     sync.RWMutex
	open   bool
	prices map[string]int64

	listeners listenerSet
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewAlpacaExchange creates an AlpacaExchange configured with the given
// credentials and API endpoints. Call Start to begin polling.
func NewAlpacaExchange(opts AlpacaOptions, log *slog.Logger) *AlpacaExchange {
	trading := alpacaapi.NewClient(alpacaapi.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.BaseURL,
	})
	data := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    opts.APIKey,
		APISecret: opts.APISecret,
		BaseURL:   opts.DataURL,
	})
	return newAlpacaExchange(trading, data, opts, log)
}

func newAlpacaExchange(trading tradingAPI, data marketDataAPI, opts AlpacaOptions, log *slog.Logger) *AlpacaExchange {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 200
	}
	return &AlpacaExchange{
		trading:  trading,
		data:     data,
		tickers:  slices.Clone(opts.Tickers),
		interval: opts.PollInterval,
		limiter:  util.NewRateLimiter(opts.RateLimit, len(opts.Tickers)+1),
		log:      log.With("component", "alpaca-exchange"),
		prices:   make(map[string]int64, len(opts.Tickers)),
	}
}

// Start loads the current clock and prices, then polls until ctx is
// cancelled or Close is called.
func (a *AlpacaExchange) Start(ctx context.Context) error {
	if err := a.refresh(ctx); err != nil {
		return fmt.Errorf("initial alpaca refresh: %w", err)
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	go a.poll(ctx)
	return nil
}

func (a *AlpacaExchange) poll(ctx context.Context) {
	defer close(a.done)
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.refresh(ctx); err != nil && ctx.Err() == nil {
				a.log.Warn("alpaca refresh failed", "error", err)
			}
		}
	}
}

// refresh updates the cached clock and prices and fires events for every
// observed change.
func (a *AlpacaExchange) refresh(ctx context.Context) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	clock, err := a.trading.GetClock()
	if err != nil {
		return fmt.Errorf("getting clock: %w", err)
	}

	a.mu.Lock()
	changed := a.open != clock.IsOpen
	a.open = clock.IsOpen
	a.mu.Unlock()
	if changed {
		if clock.IsOpen {
			a.listeners.fire(Event{Type: EventOpened})
		} else {
			a.listeners.fire(Event{Type: EventClosed})
		}
	}

	var errs []error
	for _, t := range a.tickers {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		trade, err := a.data.GetLatestTrade(t, marketdata.GetLatestTradeRequest{})
		if err != nil {
			errs = append(errs, fmt.Errorf("latest trade %s: %w", t, err))
			continue
		}
		price := toCents(decimal.NewFromFloat(trade.Price))

		a.mu.Lock()
		prev, seen := a.prices[t]
		a.prices[t] = price
		a.mu.Unlock()
		if !seen || prev != price {
			a.listeners.fire(Event{Type: EventPriceChanged, Ticker: t, Price: price})
		}
	}
	return errors.Join(errs...)
}

// IsOpen reports the last polled market state.
func (a *AlpacaExchange) IsOpen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.open
}

// Tickers returns the configured ticker universe.
func (a *AlpacaExchange) Tickers() []string {
	return slices.Clone(a.tickers)
}

// Quote returns the last polled price for ticker.
func (a *AlpacaExchange) Quote(ticker string) (domain.Quote, error) {
	if !slices.Contains(a.tickers, ticker) {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", ticker, ErrUnknownTicker)
	}
	a.mu.RLock()
	p, ok := a.prices[ticker]
	a.mu.RUnlock()
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote %s: no price yet", ticker)
	}
	return domain.Quote{Ticker: ticker, Price: p}, nil
}

// ExecuteTrade submits a day market order to Alpaca and waits for its fill.
// Nothing is submitted while the market is closed.
func (a *AlpacaExchange) ExecuteTrade(ctx context.Context, order *domain.Order) (int64, error) {
	if !a.IsOpen() {
		return 0, nil
	}
	if !slices.Contains(a.tickers, order.Ticker) {
		return 0, fmt.Errorf("execute order %d: %s: %w", order.ID, order.Ticker, ErrUnknownTicker)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	side := alpacaapi.Sell
	if order.IsBuy() {
		side = alpacaapi.Buy
	}
	qty := decimal.NewFromInt(order.Shares)

	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	placed, err := a.trading.PlaceOrder(alpacaapi.PlaceOrderRequest{
		Symbol:        order.Ticker,
		Qty:           &qty,
		Side:          side,
		Type:          alpacaapi.Market,
		TimeInForce:   alpacaapi.Day,
		ClientOrderID: fmt.Sprintf("%s-%d", order.AccountID, order.ID),
	})
	if err != nil {
		return 0, fmt.Errorf("placing order %d: %w", order.ID, err)
	}

	for {
		if placed.FilledAvgPrice != nil && placed.Status == "filled" {
			return toCents(*placed.FilledAvgPrice), nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("waiting for fill of order %d: %w", order.ID, ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		placed, err = a.trading.GetOrder(placed.ID)
		if err != nil {
			return 0, fmt.Errorf("getting order %d: %w", order.ID, err)
		}
	}
}

// AddListener registers l for market events.
func (a *AlpacaExchange) AddListener(l Listener) { a.listeners.add(l) }

// RemoveListener unregisters l.
func (a *AlpacaExchange) RemoveListener(l Listener) { a.listeners.remove(l) }

// Close stops polling.
func (a *AlpacaExchange) Close() error {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	return nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
