package queue

import "slices"

// orderSet is a sorted set backed by a slice. Insertion is a binary search
// plus a shift; the minimum is always items[0].
type orderSet[O any] struct {
	items []O
	cmp   Compare[O]
}

func newOrderSet[O any](cmp Compare[O]) *orderSet[O] {
	return &orderSet[O]{cmp: cmp}
}

// insert adds o, replacing an element that compares equal to it.
func (s *orderSet[O]) insert(o O) {
	i, found := slices.BinarySearchFunc(s.items, o, s.cmp)
	if found {
		s.items[i] = o
		return
	}
	s.items = slices.Insert(s.items, i, o)
}

func (s *orderSet[O]) min() (O, bool) {
	if len(s.items) == 0 {
		var zero O
		return zero, false
	}
	return s.items[0], true
}

// popMin removes and returns the minimum. The set must not be empty.
func (s *orderSet[O]) popMin() O {
	o := s.items[0]
	var zero O
	s.items[0] = zero
	s.items = s.items[1:]
	return o
}

func (s *orderSet[O]) len() int { return len(s.items) }

// snapshot returns a copy of the held elements in order.
func (s *orderSet[O]) snapshot() []O {
	return slices.Clone(s.items)
}
