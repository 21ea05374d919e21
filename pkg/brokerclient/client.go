// Package brokerclient is a Go SDK for the brokerage server's HTTP and gRPC
// APIs.
package brokerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Order describes an order to place. A zero Price places a market order;
// a positive Price places a stop order triggering at that price in cents.
type Order struct {
	Account string
	Ticker  string
	Side    Side
	Shares  int64
	Price   int64
}

func (o Order) wire() map[string]any {
	typ := "market"
	if o.Price > 0 {
		typ = "stop"
	}
	return map[string]any{
		"type":    typ,
		"side":    string(o.Side),
		"account": o.Account,
		"ticker":  o.Ticker,
		"shares":  o.Shares,
		"price":   o.Price,
	}
}

// Account is an account summary. Balance is in cents.
type Account struct {
	Name    string `json:"name"`
	Balance int64  `json:"balance"`
}

// Quote is a ticker's current price in cents.
type Quote struct {
	Ticker string `json:"ticker"`
	Price  int64  `json:"price"`
}

// Fill is an executed market order.
type Fill struct {
	OrderID    uint64    `json:"order_id"`
	AccountID  string    `json:"account_id"`
	Ticker     string    `json:"ticker"`
	Side       Side      `json:"side"`
	Shares     int64     `json:"shares"`
	Price      int64     `json:"price"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Status is the broker's state and queue depths.
type Status struct {
	Name          string           `json:"name"`
	State         string           `json:"state"`
	Mode          string           `json:"mode"`
	MarketPending int              `json:"market_pending"`
	StopPending   map[string]int   `json:"stop_pending"`
	Prices        map[string]int64 `json:"prices"`
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brokerclient: %d %s", e.StatusCode, e.Message)
}

// Client provides a Go SDK for interacting with the broker-server HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new broker API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateAccount opens an account with an initial balance in cents.
func (c *Client) CreateAccount(ctx context.Context, name, password string, balance int64) (Account, error) {
	var out Account
	body := map[string]any{"name": name, "password": password, "balance": balance}
	err := c.do(ctx, http.MethodPost, "/api/accounts", body, &out)
	return out, err
}

// DeleteAccount removes an account.
func (c *Client) DeleteAccount(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/api/accounts/"+url.PathEscape(name), nil, nil)
}

// Login validates the password and returns the account.
func (c *Client) Login(ctx context.Context, name, password string) (Account, error) {
	var out Account
	err := c.do(ctx, http.MethodPost, "/api/accounts/"+url.PathEscape(name)+"/login",
		map[string]string{"password": password}, &out)
	return out, err
}

// GetQuote retrieves the current price of ticker.
func (c *Client) GetQuote(ctx context.Context, ticker string) (Quote, error) {
	var out Quote
	err := c.do(ctx, http.MethodGet, "/api/quotes/"+url.PathEscape(ticker), nil, &out)
	return out, err
}

// PlaceOrder submits an order and returns its id.
func (c *Client) PlaceOrder(ctx context.Context, o Order) (uint64, error) {
	var out struct {
		ID uint64 `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/orders", o.wire(), &out)
	return out.ID, err
}

// GetStatus retrieves the broker status.
func (c *Client) GetStatus(ctx context.Context) (Status, error) {
	var out Status
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// StreamFills connects to the fill websocket and calls fn for each fill
// until ctx is cancelled or the connection fails.
func (c *Client) StreamFills(ctx context.Context, fn func(Fill)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws/fills"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var f Fill
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading fill: %w", err)
		}
		fn(f)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}
