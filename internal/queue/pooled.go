package queue

import "sync"

// pooledQueue submits a drain task to the dispatcher's shared pool on every
// mutation. Tasks for the same queue serialize on drainMu; the set lock is
// taken only around each single removal.
type pooledQueue[T, O any] struct {
	core[T, O]
	pool    *Pool
	drainMu sync.Mutex
}

var _ Queue[int64, struct{}] = (*pooledQueue[int64, struct{}])(nil)

func newPooledQueue[T, O any](d *Dispatcher, threshold T, filter Filter[T, O], cmp Compare[O]) *pooledQueue[T, O] {
	q := &pooledQueue[T, O]{pool: d.pool}
	q.init(threshold, filter, cmp, d.log)
	return q
}

// Enqueue implements Queue.
func (q *pooledQueue[T, O]) Enqueue(order O) {
	q.add(order)
	q.schedule()
}

// SetThreshold implements Queue.
func (q *pooledQueue[T, O]) SetThreshold(t T) {
	q.store(t)
	q.schedule()
}

// DispatchAll runs one drain pass on the calling goroutine.
func (q *pooledQueue[T, O]) DispatchAll() {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()
	q.drain()
}

func (q *pooledQueue[T, O]) schedule() {
	if err := q.pool.Submit(q.DispatchAll); err != nil {
		q.log.Debug("dispatch not scheduled", "error", err)
	}
}
