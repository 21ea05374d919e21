package queue

import "sync"

// dedicatedQueue owns one worker goroutine parked on a condition variable
// tied to the set lock. Mutators signal the condition; the worker removes
// dispatchable orders under the lock and invokes the processor after
// releasing it, so a slow processor never blocks Enqueue or SetThreshold.
type dedicatedQueue[T, O any] struct {
	core[T, O]
	cond   *sync.Cond
	closed bool // guarded by mu
	done   chan struct{}
}

var _ Queue[int64, struct{}] = (*dedicatedQueue[int64, struct{}])(nil)

func newDedicatedQueue[T, O any](d *Dispatcher, threshold T, filter Filter[T, O], cmp Compare[O]) *dedicatedQueue[T, O] {
	q := &dedicatedQueue[T, O]{done: make(chan struct{})}
	q.init(threshold, filter, cmp, d.log)
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue implements Queue.
func (q *dedicatedQueue[T, O]) Enqueue(order O) {
	q.mu.Lock()
	q.set.insert(order)
	q.cond.Signal()
	q.mu.Unlock()
}

// SetThreshold implements Queue.
func (q *dedicatedQueue[T, O]) SetThreshold(t T) {
	q.mu.Lock()
	q.threshold = t
	q.cond.Signal()
	q.mu.Unlock()
}

// DispatchAll wakes the worker, which drains every dispatchable order. It
// returns without waiting for the drain.
func (q *dedicatedQueue[T, O]) DispatchAll() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// run is the worker loop. It waits only when nothing is dispatchable, and
// exits at that point once stop has been called.
func (q *dedicatedQueue[T, O]) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		order, ok := q.removeLocked()
		for !ok && !q.closed {
			q.cond.Wait()
			order, ok = q.removeLocked()
		}
		q.mu.Unlock()
		if !ok {
			return
		}
		q.process(order)
	}
}

func (q *dedicatedQueue[T, O]) stop() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

func (q *dedicatedQueue[T, O]) exited() <-chan struct{} {
	return q.done
}
