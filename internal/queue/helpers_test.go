package queue

import (
	"cmp"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var modes = []Mode{ModeInline, ModeDedicated, ModePooled}

type testOrder struct {
	id     uint64
	price  int64
	shares int64
}

var testIDs atomic.Uint64

func newOrder(price, shares int64) *testOrder {
	return &testOrder{id: testIDs.Add(1), price: price, shares: shares}
}

func atOrBelow(threshold int64, o *testOrder) bool { return o.price <= threshold }

func byPriceAsc(a, b *testOrder) int {
	if c := cmp.Compare(a.price, b.price); c != 0 {
		return c
	}
	if c := cmp.Compare(b.shares, a.shares); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

func whenOpen(open bool, _ *testOrder) bool { return open }

func bySharesThenID(a, b *testOrder) int {
	if c := cmp.Compare(b.shares, a.shares); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

type recorder struct {
	mu  sync.Mutex
	got []*testOrder
}

func (r *recorder) process(o *testOrder) {
	r.mu.Lock()
	r.got = append(r.got, o)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) prices() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, len(r.got))
	for i, o := range r.got {
		out[i] = o.price
	}
	return out
}

func (r *recorder) ids() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.got))
	for i, o := range r.got {
		out[i] = o.id
	}
	return out
}

// forEachMode runs fn once per strategy with a dispatcher that is shut down
// when the subtest ends.
func forEachMode(t *testing.T, fn func(t *testing.T, d *Dispatcher)) {
	t.Helper()
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			d := NewDispatcher(mode, 4, nil)
			t.Cleanup(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = d.Shutdown(ctx)
			})
			fn(t, d)
		})
	}
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
	settle  = 50 * time.Millisecond
)
