package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"brokerage/internal/domain"
	"brokerage/internal/exchange"
	"brokerage/internal/queue"
)

// DefaultShutdownTimeout bounds Close when the factory sets none.
const DefaultShutdownTimeout = 10 * time.Second

// Factory builds brokers. Every queue of a broker uses Mode.
type Factory struct {
	Mode            queue.Mode
	Workers         int // pool size for queue.ModePooled
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// NewBroker creates a broker trading on ex with one order manager per
// listed ticker, seeded at the ticker's current quote. The broker
// subscribes to ex before returning.
func (f Factory) NewBroker(name string, accounts AccountStore, ex exchange.Exchange, recorders ...FillRecorder) (*QueueBroker, error) {
	if name == "" {
		return nil, errors.New("broker: name is required")
	}
	if accounts == nil || ex == nil {
		return nil, errors.New("broker: account store and exchange are required")
	}
	log := f.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := f.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	b := &QueueBroker{
		name:      name,
		accounts:  accounts,
		exchange:  ex,
		disp:      queue.NewDispatcher(f.Mode, f.Workers, log),
		managers:  make(map[string]*OrderManager),
		recorders: recorders,
		timeout:   timeout,
		log:       log.With("component", "broker", "broker", name),
	}

	// Managers exist before the market queue can dispatch so the listed
	// check in marketFilter sees every ticker.
	for _, t := range ex.Tickers() {
		q, err := ex.Quote(t)
		if err != nil {
			b.disp.Shutdown(context.Background())
			return nil, fmt.Errorf("seeding order manager for %s: %w", t, err)
		}
		b.managers[t] = NewOrderManager(b.disp, t, q.Price)
		b.log.Info("initialized order manager", "ticker", t, "price", q.Price)
	}

	b.market = queue.New(b.disp, ex.IsOpen(), b.marketFilter, marketCompare)
	b.market.SetProcessor(b.execute)

	toMarket := func(o *domain.StopOrder) { b.market.Enqueue(&o.Order) }
	for _, m := range b.managers {
		m.SetBuyOrderProcessor(toMarket)
		m.SetSellOrderProcessor(toMarket)
	}

	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()
	ex.AddListener(b)
	return b, nil
}
