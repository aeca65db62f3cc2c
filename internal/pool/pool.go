// Package pool provides the run-scoped worker pool used by the load runner.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultQueueSize bounds how many tasks may wait for a free worker.
	DefaultQueueSize = 1 << 16

	drainPollInterval = 2 * time.Millisecond
)

var (
	// ErrPoolClosed is returned by Submit after Shutdown.
	ErrPoolClosed = errors.New("worker pool is shut down")
	// ErrQueueFull is returned by Submit when every queue slot is taken.
	ErrQueueFull = errors.New("worker pool queue is full")
)

// Task is a unit of work. ctx is cancelled when the pool shuts down.
type Task func(ctx context.Context)

// WorkerPool runs tasks on a fixed number of goroutines.
//
// Shutdown does not wait: queued tasks are discarded and running tasks observe
// a cancelled context. Callers that want in-flight work to finish call Drain
// first.
type WorkerPool struct {
	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc

	closed  atomic.Bool
	pending atomic.Int64 // queued + running
	once    sync.Once
}

// New starts a pool with the given number of workers and queue capacity.
// Non-positive values fall back to 1 worker and DefaultQueueSize.
func New(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *WorkerPool) work() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			if p.ctx.Err() != nil {
				return
			}
			task(p.ctx)
			p.pending.Add(-1)
		}
	}
}

// Submit enqueues task without blocking.
func (p *WorkerPool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	if p.closed.Load() {
		return ErrPoolClosed
	}
	p.pending.Add(1)
	select {
	case p.tasks <- task:
		return nil
	default:
		p.pending.Add(-1)
		return ErrQueueFull
	}
}

// Pending returns the number of queued or running tasks.
func (p *WorkerPool) Pending() int64 {
	return p.pending.Load()
}

// Drain blocks until no task is queued or running, or ctx ends.
// It reports whether the pool became idle.
func (p *WorkerPool) Drain(ctx context.Context) bool {
	if p.pending.Load() == 0 {
		return true
	}
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return p.pending.Load() == 0
		case <-p.ctx.Done():
			return p.pending.Load() == 0
		case <-ticker.C:
			if p.pending.Load() == 0 {
				return true
			}
		}
	}
}

// Shutdown stops accepting tasks and cancels every worker immediately.
// It is safe to call more than once.
func (p *WorkerPool) Shutdown() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.cancel()
	})
}
