package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"brokerage/internal/domain"
)

// Compile-time interface check.
var _ Exchange = (*Simulator)(nil)

// Simulator implements the Exchange interface in memory for paper trading
// and tests. Events are delivered synchronously on the goroutine that
// changed the exchange state.
type Simulator struct {
	mu       sync.RWMutex
	open     bool
	tickers  []string
	prices   map[string]int64
	executed []domain.Fill

	listeners listenerSet
}

// NewSimulator creates a closed Simulator listing the given quotes in order.
func NewSimulator(quotes ...domain.Quote) *Simulator {
	s := &Simulator{prices: make(map[string]int64, len(quotes))}
	for _, q := range quotes {
		if _, dup := s.prices[q.Ticker]; !dup {
			s.tickers = append(s.tickers, q.Ticker)
		}
		s.prices[q.Ticker] = q.Price
	}
	return s
}

// IsOpen reports whether the simulated exchange is trading.
func (s *Simulator) IsOpen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open
}

// Tickers returns the listed tickers.
func (s *Simulator) Tickers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.tickers...)
}

// Quote returns the current simulated price for ticker.
func (s *Simulator) Quote(ticker string) (domain.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[ticker]
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", ticker, ErrUnknownTicker)
	}
	return domain.Quote{Ticker: ticker, Price: p}, nil
}

// ExecuteTrade fills the order at the current price. Nothing executes while
// the exchange is closed.
func (s *Simulator) ExecuteTrade(_ context.Context, order *domain.Order) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, nil
	}
	p, ok := s.prices[order.Ticker]
	if !ok {
		return 0, fmt.Errorf("execute order %d: %s: %w", order.ID, order.Ticker, ErrUnknownTicker)
	}
	s.executed = append(s.executed, domain.NewFill(order, p, time.Now()))
	return p, nil
}

// Executed returns the fills executed so far, oldest first.
func (s *Simulator) Executed() []domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Fill(nil), s.executed...)
}

// AddListener registers l for simulator events.
func (s *Simulator) AddListener(l Listener) { s.listeners.add(l) }

// RemoveListener unregisters l.
func (s *Simulator) RemoveListener(l Listener) { s.listeners.remove(l) }

// Open starts trading and notifies listeners.
func (s *Simulator) Open() {
	s.mu.Lock()
	s.open = true
	s.mu.Unlock()
	s.listeners.fire(Event{Type: EventOpened})
}

// CloseMarket stops trading and notifies listeners.
func (s *Simulator) CloseMarket() {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	s.listeners.fire(Event{Type: EventClosed})
}

// SetPrice moves ticker to price and notifies listeners.
func (s *Simulator) SetPrice(ticker string, price int64) error {
	s.mu.Lock()
	if _, ok := s.prices[ticker]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("set price %s: %w", ticker, ErrUnknownTicker)
	}
	s.prices[ticker] = price
	s.mu.Unlock()

	s.listeners.fire(Event{Type: EventPriceChanged, Ticker: ticker, Price: price})
	return nil
}

// Walk moves every listed price by a random step in [-maxStep, maxStep],
// never below one cent.
func (s *Simulator) Walk(rng *rand.Rand, maxStep int64) {
	if maxStep <= 0 {
		return
	}
	for _, t := range s.Tickers() {
		q, err := s.Quote(t)
		if err != nil {
			continue
		}
		next := q.Price + rng.Int63n(2*maxStep+1) - maxStep
		if next < 1 {
			next = 1
		}
		if next != q.Price {
			_ = s.SetPrice(t, next)
		}
	}
}
