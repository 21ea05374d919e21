package queue

// inlineQueue dispatches on the caller's goroutine: Enqueue and SetThreshold
// return only after the dispatch pass they trigger has finished.
type inlineQueue[T, O any] struct {
	core[T, O]
	d *Dispatcher
}

var _ Queue[int64, struct{}] = (*inlineQueue[int64, struct{}])(nil)

func newInlineQueue[T, O any](d *Dispatcher, threshold T, filter Filter[T, O], cmp Compare[O]) *inlineQueue[T, O] {
	q := &inlineQueue[T, O]{d: d}
	q.init(threshold, filter, cmp, d.log)
	return q
}

// Enqueue implements Queue.
func (q *inlineQueue[T, O]) Enqueue(order O) {
	q.add(order)
	q.dispatch()
}

// SetThreshold implements Queue.
func (q *inlineQueue[T, O]) SetThreshold(t T) {
	q.store(t)
	q.dispatch()
}

// DispatchAll implements Queue.
func (q *inlineQueue[T, O]) DispatchAll() {
	q.drain()
}

func (q *inlineQueue[T, O]) dispatch() {
	if q.d.stopped() {
		return
	}
	q.drain()
}
