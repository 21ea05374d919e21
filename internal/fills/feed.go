// Package fills distributes executed fills to interested consumers: an
// in-process subscription feed and a Kafka topic.
package fills

import (
	"context"
	"log/slog"
	"sync"

	"brokerage/internal/domain"
)

// Feed fans fills out to subscribers. It implements the broker's fill
// recorder. Slow subscribers have fills dropped rather than stalling
// dispatch.
type Feed struct {
	log *slog.Logger

	mu        sync.Mutex
	subs      map[int]chan domain.Fill
	nextSubID int
	dropped   int
}

// NewFeed creates an empty Feed.
func NewFeed(log *slog.Logger) *Feed {
	return &Feed{
		log:  log.With("component", "fill-feed"),
		subs: make(map[int]chan domain.Fill),
	}
}

// RecordFill broadcasts f to every subscriber.
func (f *Feed) RecordFill(_ context.Context, fill domain.Fill) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		select {
		case ch <- fill:
		default:
			f.dropped++
			f.log.Debug("subscriber full, dropping fill", "subscriber", id, "order_id", fill.OrderID)
		}
	}
	return nil
}

// Subscribe returns a channel that receives fills. bufSize controls the
// channel buffer; slow consumers will have fills dropped.
func (f *Feed) Subscribe(bufSize int) (int, <-chan domain.Fill) {
	ch := make(chan domain.Fill, bufSize)
	f.mu.Lock()
	id := f.nextSubID
	f.nextSubID++
	f.subs[id] = ch
	f.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(id int) {
	f.mu.Lock()
	if ch, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(ch)
	}
	f.mu.Unlock()
}

// Dropped returns how many deliveries were dropped on full subscribers.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close unsubscribes everyone.
func (f *Feed) Close() {
	f.mu.Lock()
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
	f.mu.Unlock()
}
