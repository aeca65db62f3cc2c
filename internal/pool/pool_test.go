package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	p := New(4, 16)
	defer p.Shutdown()

	var ran int64
	for i := 0; i < 10; i++ {
		if err := p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&ran, 1)
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if !p.Drain(ctx) {
		t.Fatalf("Drain timed out with %d pending", p.Pending())
	}
	if got := atomic.LoadInt64(&ran); got != 10 {
		t.Errorf("expected 10 tasks to run, got %d", got)
	}
}

func TestWorkerPool_Defaults(t *testing.T) {
	p := New(0, 0)
	defer p.Shutdown()

	done := make(chan struct{})
	if err := p.Submit(func(context.Context) { close(done) }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("default pool never ran the task")
	}
	if cap(p.tasks) != DefaultQueueSize {
		t.Errorf("queue capacity = %d, want %d", cap(p.tasks), DefaultQueueSize)
	}
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	p := New(1, 1)
	p.Shutdown()
	p.Shutdown()

	err := p.Submit(func(ctx context.Context) {})
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
	if p.ctx.Err() == nil {
		t.Fatal("pool context should be cancelled after Shutdown")
	}
}

func TestWorkerPool_QueueFull(t *testing.T) {
	p := New(1, 1)
	defer p.Shutdown()

	block := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	}); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	<-started

	// Occupies the single queue slot.
	if err := p.Submit(func(ctx context.Context) {}); err != nil {
		t.Fatalf("second Submit failed: %v", err)
	}
	err := p.Submit(func(ctx context.Context) {})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if p.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", p.Pending())
	}
	close(block)
}

func TestWorkerPool_ShutdownCancelsRunningTasks(t *testing.T) {
	p := New(2, 8)

	started := make(chan struct{}, 2)
	cancelled := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		if err := p.Submit(func(ctx context.Context) {
			started <- struct{}{}
			<-ctx.Done()
			cancelled <- struct{}{}
		}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
	}
	<-started
	<-started

	shutdownAt := time.Now()
	p.Shutdown()
	if time.Since(shutdownAt) > 50*time.Millisecond {
		t.Fatal("Shutdown should not wait for running tasks")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("running task did not observe cancellation")
		}
	}
}

func TestWorkerPool_ShutdownDiscardsQueuedTasks(t *testing.T) {
	p := New(1, 8)

	release := make(chan struct{})
	started := make(chan struct{})
	_ = p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	var ran int64
	for i := 0; i < 5; i++ {
		_ = p.Submit(func(ctx context.Context) { atomic.AddInt64(&ran, 1) })
	}

	p.Shutdown()
	close(release)
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt64(&ran); got != 0 {
		t.Errorf("expected queued tasks to be discarded, %d ran", got)
	}
}

func TestWorkerPool_DrainRespectsContext(t *testing.T) {
	p := New(1, 4)
	defer p.Shutdown()

	release := make(chan struct{})
	defer close(release)
	_ = p.Submit(func(ctx context.Context) {
		select {
		case <-release:
		case <-ctx.Done():
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if p.Drain(ctx) {
		t.Fatal("Drain should report false while a task is still running")
	}
}
