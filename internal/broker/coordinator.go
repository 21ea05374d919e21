package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"brokerage/internal/account"
	"brokerage/internal/domain"
	"brokerage/internal/exchange"
	"brokerage/internal/queue"
)

// Compile-time interface checks.
var _ Broker = (*QueueBroker)(nil)
var _ exchange.Listener = (*QueueBroker)(nil)

// QueueBroker is the Broker built by Factory. Market orders share one queue
// gated by the exchange's open state; stop orders wait in per-ticker
// OrderManagers gated by price. Triggered stop orders move to the market
// queue.
type QueueBroker struct {
	name      string
	accounts  AccountStore
	exchange  exchange.Exchange
	disp      *queue.Dispatcher
	market    queue.Queue[bool, *domain.Order]
	managers  map[string]*OrderManager
	recorders []FillRecorder
	timeout   time.Duration
	log       *slog.Logger

	mu    sync.RWMutex
	ready bool
}

// check guards every public operation.
func (b *QueueBroker) check() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.ready {
		return ErrNotReady
	}
	return nil
}

// Name returns the broker name. Like Status it is readable after Close.
func (b *QueueBroker) Name() string { return b.name }

// CreateAccount delegates to the account store.
func (b *QueueBroker) CreateAccount(ctx context.Context, name, password string, balance int64) (*account.Account, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	acct, err := b.accounts.CreateAccount(ctx, name, password, balance)
	if err != nil {
		b.log.Warn("create account failed", "account", name, "error", err)
		return nil, &Error{Op: "create account", Err: err}
	}
	return acct, nil
}

// DeleteAccount delegates to the account store.
func (b *QueueBroker) DeleteAccount(ctx context.Context, name string) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := b.accounts.DeleteAccount(ctx, name); err != nil {
		b.log.Warn("delete account failed", "account", name, "error", err)
		return &Error{Op: "delete account", Err: err}
	}
	return nil
}

// GetAccount loads the named account after validating password.
func (b *QueueBroker) GetAccount(ctx context.Context, name, password string) (*account.Account, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	acct, err := b.accounts.GetAccount(ctx, name)
	if err != nil {
		b.log.Warn("get account failed", "account", name, "error", err)
		return nil, &Error{Op: "get account", Err: err}
	}
	if err := b.accounts.ValidateLogin(ctx, name, password); err != nil {
		b.log.Warn("login rejected", "account", name)
		return nil, &Error{Op: "get account", Err: err}
	}
	return acct, nil
}

// RequestQuote returns the exchange quote for ticker.
func (b *QueueBroker) RequestQuote(_ context.Context, ticker string) (domain.Quote, error) {
	if err := b.check(); err != nil {
		return domain.Quote{}, err
	}
	q, err := b.exchange.Quote(ticker)
	if err != nil {
		return domain.Quote{}, &Error{Op: "request quote", Err: err}
	}
	return q, nil
}

// PlaceMarketOrder enqueues order in the market queue.
func (b *QueueBroker) PlaceMarketOrder(_ context.Context, order *domain.Order) error {
	if err := b.check(); err != nil {
		return err
	}
	b.market.Enqueue(order)
	return nil
}

// PlaceStopOrder enqueues order with its ticker's manager.
func (b *QueueBroker) PlaceStopOrder(_ context.Context, order *domain.StopOrder) error {
	if err := b.check(); err != nil {
		return err
	}
	m, err := b.manager(order.Ticker)
	if err != nil {
		return err
	}
	m.QueueOrder(order)
	return nil
}

// Status returns the broker state and queue depths. It never fails; a
// closed broker reports StateShutdown.
func (b *QueueBroker) Status() Status {
	st := Status{
		Name:          b.name,
		Mode:          b.disp.Mode(),
		MarketPending: b.market.Len(),
		StopPending:   make(map[string]int, len(b.managers)),
		Prices:        make(map[string]int64, len(b.managers)),
	}
	for t, m := range b.managers {
		st.StopPending[t] = m.Pending()
		st.Prices[t] = m.Price()
	}
	switch {
	case b.check() != nil:
		st.State = StateShutdown
	case b.market.Threshold():
		st.State = StateOpen
	default:
		st.State = StateClosed
	}
	return st
}

// Opened releases the market queue.
func (b *QueueBroker) Opened(exchange.Event) {
	if err := b.check(); err != nil {
		b.log.Warn("ignoring exchange event", "event", "opened", "error", err)
		return
	}
	b.log.Info("exchange opened")
	b.market.SetThreshold(true)
}

// Closed holds the market queue.
func (b *QueueBroker) Closed(exchange.Event) {
	if err := b.check(); err != nil {
		b.log.Warn("ignoring exchange event", "event", "closed", "error", err)
		return
	}
	b.market.SetThreshold(false)
	b.log.Info("exchange closed")
}

// PriceChanged moves the ticker's stop thresholds.
func (b *QueueBroker) PriceChanged(e exchange.Event) {
	if err := b.check(); err != nil {
		b.log.Warn("ignoring exchange event", "event", "price_changed", "error", err)
		return
	}
	m, err := b.manager(e.Ticker)
	if err != nil {
		b.log.Error("price change for unmanaged ticker", "ticker", e.Ticker, "price", e.Price, "error", err)
		return
	}
	m.AdjustPrice(e.Price)
	b.log.Debug("price changed", "ticker", e.Ticker, "price", e.Price)
}

// Close unsubscribes from the exchange, shuts dispatch down within the
// configured timeout and closes the account store. The store is closed even
// when the shutdown times out.
func (b *QueueBroker) Close() error {
	b.mu.Lock()
	if !b.ready {
		b.mu.Unlock()
		return ErrNotReady
	}
	b.ready = false
	b.mu.Unlock()

	b.log.Info("closing broker")
	b.exchange.RemoveListener(b)

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	if err := b.disp.Shutdown(ctx); err != nil {
		b.log.Error("dispatch shutdown incomplete", "error", err)
		errs = append(errs, &Error{Op: "close", Err: err})
	}
	if err := b.accounts.Close(); err != nil {
		b.log.Error("closing account store failed", "error", err)
		errs = append(errs, &Error{Op: "close", Err: err})
	}
	return errors.Join(errs...)
}

func (b *QueueBroker) manager(ticker string) (*OrderManager, error) {
	m, ok := b.managers[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoManager, ticker)
	}
	return m, nil
}

// marketFilter admits orders while the exchange is open and only for listed
// tickers.
func (b *QueueBroker) marketFilter(open bool, o *domain.Order) bool {
	_, listed := b.managers[o.Ticker]
	return open && listed
}

// execute is the market queue processor. Failures are logged per order and
// never stop the queue.
func (b *QueueBroker) execute(order *domain.Order) {
	ctx := context.Background()
	log := b.log.With("order_id", order.ID, "account", order.AccountID, "ticker", order.Ticker)

	price, err := b.exchange.ExecuteTrade(ctx, order)
	if err != nil {
		log.Error("trade execution failed", "error", err)
		return
	}
	if price == 0 {
		log.Warn("exchange did not execute order")
		return
	}

	acct, err := b.accounts.GetAccount(ctx, order.AccountID)
	if err != nil {
		log.Error("failed to reflect order in balance", "error", err)
		return
	}
	if err := acct.ReflectOrder(ctx, order, price); err != nil {
		log.Error("failed to reflect order in balance", "error", err)
		return
	}

	fill := domain.NewFill(order, price, time.Now())
	for _, r := range b.recorders {
		if err := r.RecordFill(ctx, fill); err != nil {
			log.Warn("recording fill failed", "error", err)
		}
	}
	log.Info("order executed", "side", string(order.Side), "shares", order.Shares, "price", price)
}
