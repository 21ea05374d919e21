package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Mode selects the concurrency strategy used by every queue of a
// Dispatcher.
type Mode string

const (
	// ModeInline dispatches synchronously on the mutating goroutine.
	ModeInline Mode = "inline"
	// ModeDedicated runs one worker goroutine per queue.
	ModeDedicated Mode = "dedicated"
	// ModePooled runs drain tasks on a worker pool shared by all queues.
	ModePooled Mode = "pooled"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInline, ModeDedicated, ModePooled:
		return m, nil
	case "":
		return ModeInline, nil
	default:
		return "", fmt.Errorf("queue: unknown dispatch mode %q", s)
	}
}

// worker is implemented by queues that own background goroutines.
type worker interface {
	stop()
	exited() <-chan struct{}
}

// Dispatcher creates queues of one strategy and owns the background
// machinery behind them, so a broker can shut all of it down at once.
type Dispatcher struct {
	mode Mode
	pool *Pool
	log  *slog.Logger

	mu      sync.Mutex
	workers []worker
	halted  atomic.Bool
}

// NewDispatcher creates a dispatcher for mode. workers sizes the shared
// pool in ModePooled and is ignored otherwise.
func NewDispatcher(mode Mode, workers int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{mode: mode, log: log.With("dispatch_mode", string(mode))}
	if mode == ModePooled {
		d.pool = NewPool(workers, d.log)
	}
	return d
}

// Mode returns the dispatcher's strategy.
func (d *Dispatcher) Mode() Mode { return d.mode }

func (d *Dispatcher) stopped() bool { return d.halted.Load() }

// New creates a queue using d's strategy.
func New[T, O any](d *Dispatcher, threshold T, filter Filter[T, O], cmp Compare[O]) Queue[T, O] {
	switch d.mode {
	case ModeDedicated:
		q := newDedicatedQueue(d, threshold, filter, cmp)
		d.mu.Lock()
		d.workers = append(d.workers, q)
		d.mu.Unlock()
		if d.stopped() {
			q.stop()
		}
		return q
	case ModePooled:
		return newPooledQueue(d, threshold, filter, cmp)
	default:
		return newInlineQueue(d, threshold, filter, cmp)
	}
}

// Shutdown stops scheduling new dispatch passes and waits for background
// workers to finish the orders that are already dispatchable. It returns an
// error if ctx expires first. Queues keep accepting mutations afterwards but
// no longer dispatch.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if d.halted.Swap(true) {
		return nil
	}

	switch d.mode {
	case ModePooled:
		return d.pool.Shutdown(ctx)
	case ModeDedicated:
		d.mu.Lock()
		workers := append([]worker(nil), d.workers...)
		d.mu.Unlock()

		for _, w := range workers {
			w.stop()
		}
		for _, w := range workers {
			select {
			case <-w.exited():
			case <-ctx.Done():
				return fmt.Errorf("waiting for queue workers: %w", ctx.Err())
			}
		}
	}
	d.log.Debug("dispatcher stopped")
	return nil
}
