package broker

import (
	"brokerage/internal/domain"
	"brokerage/internal/queue"
)

// OrderManager holds the stop buy and stop sell queues of one ticker. Both
// queues are gated by the ticker's last known price.
type OrderManager struct {
	ticker string
	buy    queue.Queue[int64, *domain.StopOrder]
	sell   queue.Queue[int64, *domain.StopOrder]
}

// NewOrderManager creates the queues for ticker starting at price.
func NewOrderManager(d *queue.Dispatcher, ticker string, price int64) *OrderManager {
	return &OrderManager{
		ticker: ticker,
		buy:    queue.New(d, price, stopBuyFilter, stopBuyCompare),
		sell:   queue.New(d, price, stopSellFilter, stopSellCompare),
	}
}

// Ticker returns the managed ticker.
func (m *OrderManager) Ticker() string { return m.ticker }

// Price returns the last price applied to the queues.
func (m *OrderManager) Price() int64 { return m.buy.Threshold() }

// QueueOrder routes order to the queue matching its side.
func (m *OrderManager) QueueOrder(order *domain.StopOrder) {
	if order.IsBuy() {
		m.buy.Enqueue(order)
		return
	}
	m.sell.Enqueue(order)
}

// AdjustPrice moves both thresholds to price, dispatching any stop orders
// it triggers.
func (m *OrderManager) AdjustPrice(price int64) {
	m.buy.SetThreshold(price)
	m.sell.SetThreshold(price)
}

// SetBuyOrderProcessor sets the callback for triggered stop buys.
func (m *OrderManager) SetBuyOrderProcessor(p queue.Processor[*domain.StopOrder]) {
	m.buy.SetProcessor(p)
}

// SetSellOrderProcessor sets the callback for triggered stop sells.
func (m *OrderManager) SetSellOrderProcessor(p queue.Processor[*domain.StopOrder]) {
	m.sell.SetProcessor(p)
}

// Pending returns the number of waiting stop orders.
func (m *OrderManager) Pending() int { return m.buy.Len() + m.sell.Len() }
