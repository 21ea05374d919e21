// Package domain defines the core types shared across the brokerage: orders,
// quotes, fills, and persisted account records.
package domain

import (
	"sync/atomic"
	"time"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// orderSeq backs NextOrderID. Ids start at 1 and never repeat within a process.
var orderSeq atomic.Uint64

// NextOrderID returns the next process-unique order id.
func NextOrderID() uint64 {
	return orderSeq.Add(1)
}

// Order is an unconditional (market) order. It is dispatched once the
// exchange is open and its ticker is listed. Identity fields never change
// after construction.
type Order struct {
	ID        uint64    `json:"id"`
	AccountID string    `json:"account_id"`
	Ticker    string    `json:"ticker"`
	Shares    int64     `json:"shares"`
	Side      Side      `json:"side"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMarketBuy creates a market buy order with a fresh id.
func NewMarketBuy(accountID, ticker string, shares int64) *Order {
	return newOrder(accountID, ticker, shares, SideBuy)
}

// NewMarketSell creates a market sell order with a fresh id.
func NewMarketSell(accountID, ticker string, shares int64) *Order {
	return newOrder(accountID, ticker, shares, SideSell)
}

func newOrder(accountID, ticker string, shares int64, side Side) *Order {
	return &Order{
		ID:        NextOrderID(),
		AccountID: accountID,
		Ticker:    ticker,
		Shares:    shares,
		Side:      side,
		CreatedAt: time.Now(),
	}
}

// IsBuy reports whether the order buys shares.
func (o *Order) IsBuy() bool { return o.Side == SideBuy }

// Value returns the balance delta of executing the order at price: buys
// debit the account, sells credit it.
func (o *Order) Value(price int64) int64 {
	v := o.Shares * price
	if o.IsBuy() {
		return -v
	}
	return v
}

// StopOrder is a conditional order. A stop buy becomes executable once the
// market price has risen to Price or above; a stop sell once it has fallen
// to Price or below.
type StopOrder struct {
	Order
	Price int64 `json:"price"`
}

// NewStopBuy creates a stop buy order triggering at price.
func NewStopBuy(accountID, ticker string, shares, price int64) *StopOrder {
	return &StopOrder{Order: *newOrder(accountID, ticker, shares, SideBuy), Price: price}
}

// NewStopSell creates a stop sell order triggering at price.
func NewStopSell(accountID, ticker string, shares, price int64) *StopOrder {
	return &StopOrder{Order: *newOrder(accountID, ticker, shares, SideSell), Price: price}
}

// Quote is the exchange's current price for a ticker, in minor currency
// units (cents).
type Quote struct {
	Ticker string `json:"ticker"`
	Price  int64  `json:"price"`
}

// Fill records one executed market order.
type Fill struct {
	OrderID    uint64    `json:"order_id"`
	AccountID  string    `json:"account_id"`
	Ticker     string    `json:"ticker"`
	Side       Side      `json:"side"`
	Shares     int64     `json:"shares"`
	Price      int64     `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// NewFill builds the fill for order executed at price.
func NewFill(o *Order, price int64, at time.Time) Fill {
	return Fill{
		OrderID:    o.ID,
		AccountID:  o.AccountID,
		Ticker:     o.Ticker,
		Side:       o.Side,
		Shares:     o.Shares,
		Price:      price,
		ExecutedAt: at,
	}
}

// Address is a postal address attached to an account profile.
type Address struct {
	Street string `json:"street,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// CreditCard is the payment card on file for an account.
type CreditCard struct {
	Issuer     string `json:"issuer,omitempty"`
	Type       string `json:"type,omitempty"`
	Holder     string `json:"holder,omitempty"`
	Number     string `json:"number,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

// Account is the persisted form of a brokerage account. Balance is in
// cents.
type Account struct {
	Name         string      `json:"name"`
	PasswordHash []byte      `json:"password_hash"`
	Balance      int64       `json:"balance"`
	FullName     string      `json:"full_name,omitempty"`
	Phone        string      `json:"phone,omitempty"`
	Email        string      `json:"email,omitempty"`
	Address      *Address    `json:"address,omitempty"`
	CreditCard   *CreditCard `json:"credit_card,omitempty"`
}

// Clone returns a deep copy of the account record.
func (a *Account) Clone() *Account {
	out := *a
	out.PasswordHash = append([]byte(nil), a.PasswordHash...)
	if a.Address != nil {
		addr := *a.Address
		out.Address = &addr
	}
	if a.CreditCard != nil {
		cc := *a.CreditCard
		out.CreditCard = &cc
	}
	return &out
}
