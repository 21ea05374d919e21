// Package queue provides threshold-gated priority queues of orders and the
// three concurrency strategies that drive their dispatch.
//
// A queue holds orders sorted by a comparator. Its minimum element is
// dispatchable when filter(threshold, min) holds. Every mutation (enqueue or
// threshold change) schedules a dispatch pass that removes dispatchable
// orders one at a time, re-evaluating the current minimum and threshold
// before each removal, and hands them to the registered processor.
package queue

import (
	"log/slog"
	"sync"
)

// Filter reports whether order may be dispatched under threshold. It must be
// pure; the queue provides all locking.
type Filter[T, O any] func(threshold T, order O) bool

// Compare orders two elements; negative means a dispatches before b. It must
// be a strict total order: two distinct orders never compare equal.
type Compare[O any] func(a, b O) int

// Processor receives each dispatched order.
type Processor[O any] func(order O)

// Queue is the contract shared by all strategies.
type Queue[T, O any] interface {
	// Enqueue inserts order and schedules a dispatch pass. An order comparing
	// equal to a held order replaces it.
	Enqueue(order O)

	// TryRemoveDispatchable removes and returns the minimum order if it passes
	// the filter. Read, test and remove happen under one critical section.
	TryRemoveDispatchable() (O, bool)

	// DispatchAll removes dispatchable orders until none remain, passing each
	// to the processor. With no processor registered, orders are dropped.
	// Inline and pooled queues drain on the calling goroutine; a dedicated
	// queue only wakes its worker, so orders may still be in flight when
	// DispatchAll returns.
	DispatchAll()

	// SetProcessor replaces the processor. It never runs concurrently with an
	// in-flight invocation of the previous processor.
	SetProcessor(p Processor[O])

	// SetThreshold stores t and schedules a dispatch pass.
	SetThreshold(t T)

	// Threshold returns a snapshot of the current threshold.
	Threshold() T

	// Len returns the number of orders held.
	Len() int
}

// core holds the state common to every strategy: the ordered set and
// threshold guarded by mu, and the processor guarded by procMu.
type core[T, O any] struct {
	mu        sync.Mutex
	set       *orderSet[O]
	threshold T
	filter    Filter[T, O]

	procMu sync.Mutex
	proc   Processor[O]

	log *slog.Logger
}

func (c *core[T, O]) init(threshold T, filter Filter[T, O], cmp Compare[O], log *slog.Logger) {
	c.set = newOrderSet(cmp)
	c.threshold = threshold
	c.filter = filter
	c.log = log
}

func (c *core[T, O]) add(order O) {
	c.mu.Lock()
	c.set.insert(order)
	c.mu.Unlock()
}

func (c *core[T, O]) store(t T) {
	c.mu.Lock()
	c.threshold = t
	c.mu.Unlock()
}

// removeLocked must be called with mu held.
func (c *core[T, O]) removeLocked() (O, bool) {
	min, ok := c.set.min()
	if !ok || !c.filter(c.threshold, min) {
		var zero O
		return zero, false
	}
	return c.set.popMin(), true
}

// TryRemoveDispatchable implements Queue.
func (c *core[T, O]) TryRemoveDispatchable() (O, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked()
}

// SetProcessor implements Queue.
func (c *core[T, O]) SetProcessor(p Processor[O]) {
	c.procMu.Lock()
	c.proc = p
	c.procMu.Unlock()
}

// Threshold implements Queue.
func (c *core[T, O]) Threshold() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// Len implements Queue.
func (c *core[T, O]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.len()
}

// process hands order to the current processor while holding procMu. A
// panicking processor is logged and does not take the dispatch loop down.
func (c *core[T, O]) process(order O) {
	c.procMu.Lock()
	defer c.procMu.Unlock()
	if c.proc == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("order processor panicked", "panic", r)
		}
	}()
	c.proc(order)
}

// drain is the shared dispatch loop.
func (c *core[T, O]) drain() {
	for {
		order, ok := c.TryRemoveDispatchable()
		if !ok {
			return
		}
		c.process(order)
	}
}
