// Package exchange defines the Exchange interface consumed by the broker and
// provides implementations: an in-memory simulator, a network proxy speaking
// the exchange's TCP/UDP protocol, the matching server-side adapter, and an
// Alpaca-backed exchange.
package exchange

import (
	"context"
	"errors"

	"brokerage/internal/domain"
)

// ErrUnknownTicker is returned for tickers the exchange does not list.
var ErrUnknownTicker = errors.New("exchange: ticker not listed")

// Exchange abstracts a stock exchange: its trading state, listed
// instruments, quotes, trade execution and lifecycle events.
type Exchange interface {
	// IsOpen reports whether the exchange is currently trading.
	IsOpen() bool

	// Tickers returns the listed ticker symbols in exchange order.
	Tickers() []string

	// Quote returns the current price for ticker, or ErrUnknownTicker.
	Quote(ticker string) (domain.Quote, error)

	// ExecuteTrade executes a market order and returns the execution price.
	// A closed exchange executes nothing and returns 0.
	ExecuteTrade(ctx context.Context, order *domain.Order) (int64, error)

	// AddListener registers l for exchange events.
	AddListener(l Listener)

	// RemoveListener unregisters l.
	RemoveListener(l Listener)
}

// EventType identifies an exchange lifecycle event.
type EventType string

const (
	EventOpened       EventType = "opened"
	EventClosed       EventType = "closed"
	EventPriceChanged EventType = "price_changed"
)

// Event is delivered to listeners. Ticker and Price are set only for
// EventPriceChanged.
type Event struct {
	Type   EventType
	Ticker string
	Price  int64
}

// Listener receives exchange events. Implementations must be safe for
// concurrent use; events may arrive on any goroutine.
type Listener interface {
	Opened(Event)
	Closed(Event)
	PriceChanged(Event)
}

// Notify delivers e to the listener method matching its type.
func Notify(l Listener, e Event) {
	switch e.Type {
	case EventOpened:
		l.Opened(e)
	case EventClosed:
		l.Closed(e)
	case EventPriceChanged:
		l.PriceChanged(e)
	}
}
