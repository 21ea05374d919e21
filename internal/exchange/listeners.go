package exchange

import "sync"

// listenerSet is a concurrency-safe set of listeners shared by the
// implementations in this package.
type listenerSet struct {
	mu        sync.RWMutex
	listeners map[Listener]struct{}
}

func (s *listenerSet) add(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[Listener]struct{})
	}
	s.listeners[l] = struct{}{}
}

func (s *listenerSet) remove(l Listener) {
	s.mu.Lock()
	delete(s.listeners, l)
	s.mu.Unlock()
}

// fire delivers e to a snapshot of the registered listeners, so a listener
// may unregister itself from inside a callback.
func (s *listenerSet) fire(e Event) {
	s.mu.RLock()
	snapshot := make([]Listener, 0, len(s.listeners))
	for l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.mu.RUnlock()

	for _, l := range snapshot {
		Notify(l, e)
	}
}

func (s *listenerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}
