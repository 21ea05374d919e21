// Package broker implements the brokerage coordinator: it routes placed
// orders into threshold-gated queues, reacts to exchange events, and on
// dispatch executes trades and reflects them into accounts.
package broker

import (
	"context"

	"brokerage/internal/account"
	"brokerage/internal/domain"
	"brokerage/internal/queue"
)

// Broker abstracts brokerage operations for order placement and account
// management.
type Broker interface {
	// Name returns the broker identifier.
	Name() string

	// CreateAccount opens an account with an initial balance in cents.
	CreateAccount(ctx context.Context, name, password string, balance int64) (*account.Account, error)

	// DeleteAccount removes an account.
	DeleteAccount(ctx context.Context, name string) error

	// GetAccount authenticates and returns the named account.
	GetAccount(ctx context.Context, name, password string) (*account.Account, error)

	// RequestQuote returns the exchange's current price for ticker.
	RequestQuote(ctx context.Context, ticker string) (domain.Quote, error)

	// PlaceMarketOrder queues a market order for execution once the
	// exchange is open.
	PlaceMarketOrder(ctx context.Context, order *domain.Order) error

	// PlaceStopOrder queues a stop order with the ticker's order manager.
	PlaceStopOrder(ctx context.Context, order *domain.StopOrder) error

	// Status returns a snapshot of the broker's state and queue depths.
	Status() Status

	// Close unsubscribes from the exchange, stops dispatch and closes the
	// account store.
	Close() error
}

// AccountStore is the account service the broker delegates to.
type AccountStore interface {
	GetAccount(ctx context.Context, name string) (*account.Account, error)
	CreateAccount(ctx context.Context, name, password string, balance int64) (*account.Account, error)
	DeleteAccount(ctx context.Context, name string) error
	ValidateLogin(ctx context.Context, name, password string) error
	Close() error
}

// FillRecorder receives every executed market order.
type FillRecorder interface {
	RecordFill(ctx context.Context, f domain.Fill) error
}

// State is the externally visible broker mode.
type State string

const (
	StateClosed   State = "closed"   // exchange closed, market orders accumulate
	StateOpen     State = "open"     // exchange open, market orders dispatch
	StateShutdown State = "shutdown" // broker closed
)

// Status is a point-in-time view of a broker.
type Status struct {
	Name          string           `json:"name"`
	State         State            `json:"state"`
	Mode          queue.Mode       `json:"mode"`
	MarketPending int              `json:"market_pending"`
	StopPending   map[string]int   `json:"stop_pending"`
	Prices        map[string]int64 `json:"prices"`
}

var _ AccountStore = (*account.Manager)(nil)
