package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("queue: worker pool is shut down")

// Pool is a fixed set of worker goroutines consuming an unbounded task list.
// Submit never blocks, so a task may submit further tasks (a processor
// enqueuing into another queue) without risking a pool-wide deadlock.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool

	wg  sync.WaitGroup
	log *slog.Logger
}

// NewPool starts a pool of n workers (at least one).
func NewPool(n int, log *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{log: log}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

// Submit queues fn for execution by a worker.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.tasks = append(p.tasks, fn)
	p.cond.Signal()
	return nil
}

// Pending returns the number of tasks waiting for a worker.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.tasks) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.tasks) == 0 {
			p.mu.Unlock()
			return
		}
		fn := p.tasks[0]
		p.tasks[0] = nil
		p.tasks = p.tasks[1:]
		p.mu.Unlock()

		p.run(fn)
	}
}

func (p *Pool) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("pool task panicked", "panic", r)
		}
	}()
	fn()
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish, or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for pool workers: %w", ctx.Err())
	}
}
