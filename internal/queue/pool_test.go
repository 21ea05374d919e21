package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(3, nil)
	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		if err := p.Submit(func() {
			defer wg.Done()
			n.Add(1)
		}); err != nil {
			t.Fatalf("Submit returned error: %v", err)
		}
	}
	wg.Wait()
	if got := n.Load(); got != 100 {
		t.Errorf("ran %d tasks, want %d", got, 100)
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
}

func TestPoolNestedSubmitDoesNotDeadlock(t *testing.T) {
	p := NewPool(1, nil)
	done := make(chan struct{})
	err := p.Submit(func() {
		if err := p.Submit(func() { close(done) }); err != nil {
			t.Errorf("nested Submit returned error: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("nested task never ran")
	}
	_ = p.Shutdown(context.Background())
}

func TestPoolShutdownDrainsQueuedTasks(t *testing.T) {
	p := NewPool(1, nil)
	var n atomic.Int32
	block := make(chan struct{})
	_ = p.Submit(func() { <-block })
	for i := 0; i < 5; i++ {
		_ = p.Submit(func() { n.Add(1) })
	}

	errc := make(chan error, 1)
	go func() { errc <- p.Shutdown(context.Background()) }()
	close(block)

	if err := <-errc; err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if got := n.Load(); got != 5 {
		t.Errorf("drained %d tasks, want %d", got, 5)
	}
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Shutdown = %v, want %v", err, ErrPoolClosed)
	}
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, nil)
	done := make(chan struct{})
	_ = p.Submit(func() { panic("boom") })
	_ = p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after a panicking task")
	}
	_ = p.Shutdown(context.Background())
}
