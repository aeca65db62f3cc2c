package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
	"github.com/bimalkant-lauhny/loadrunner/internal/pool"
)

// dispatcher turns one scheduled request into running work.
type dispatcher interface {
	submit() error
	// warm runs one operation to completion on the calling goroutine,
	// ignoring its outcome.
	warm(ctx context.Context)
	drain(ctx context.Context) bool
	// inFlight is the number of submitted operations not yet resolved.
	inFlight() int64
	shutdown()
}

// recordingGate is the single place completions are accounted. Once closed,
// late completions count as abandoned and the histogram is left untouched.
type recordingGate struct {
	mu     sync.RWMutex
	closed bool

	rec      *metrics.Recorder
	stats    *metrics.RunStats
	failures *metrics.FailureTracker
	sink     FailureSink
}

func newRecordingGate(opt Options) *recordingGate {
	return &recordingGate{
		rec:      opt.Recorder,
		stats:    opt.Stats,
		failures: opt.Failures,
		sink:     opt.FailureSink,
	}
}

func (g *recordingGate) complete(ctx context.Context, elapsed time.Duration, err error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.closed || ctx.Err() != nil {
		g.stats.IncAbandoned()
		return
	}
	if err != nil {
		g.stats.IncFailed()
		g.failures.RecordFailure(err)
		if g.sink != nil {
			g.sink.RecordFailure(err)
		}
		return
	}
	g.rec.Record(elapsed)
	g.stats.IncCompleted()
}

func (g *recordingGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// syncDispatcher runs blocking operations on a worker pool.
type syncDispatcher struct {
	pool  *pool.WorkerPool
	newOp Factory
	stats *metrics.RunStats
	gate  *recordingGate
}

func newSyncDispatcher(opt Options, gate *recordingGate) *syncDispatcher {
	return &syncDispatcher{
		pool:  pool.New(opt.Concurrency, opt.QueueSize),
		newOp: opt.Operation,
		stats: opt.Stats,
		gate:  gate,
	}
}

func (d *syncDispatcher) submit() error {
	d.stats.IncSubmitted()
	return d.pool.Submit(func(ctx context.Context) {
		op := d.newOp()
		d.stats.IncStarted()
		start := time.Now()
		err := callSafely(ctx, op)
		d.gate.complete(ctx, time.Since(start), err)
	})
}

func (d *syncDispatcher) warm(ctx context.Context) {
	done := make(chan struct{})
	err := d.pool.Submit(func(poolCtx context.Context) {
		defer close(done)
		_ = callSafely(poolCtx, d.newOp())
	})
	if err != nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (d *syncDispatcher) drain(ctx context.Context) bool {
	return d.pool.Drain(ctx)
}

func (d *syncDispatcher) inFlight() int64 {
	return d.pool.Pending()
}

func (d *syncDispatcher) shutdown() {
	d.gate.close()
	d.pool.Shutdown()
}

type completion struct {
	ctx     context.Context
	latency time.Duration
	err     error
}

// asyncDispatcher starts non-blocking operations on the controller goroutine
// and records their futures from a fixed set of consumers.
type asyncDispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	newOp  AsyncFactory
	stats  *metrics.RunStats
	gate   *recordingGate

	completions chan completion
	pending     atomic.Int64
	closed      atomic.Bool
	awaiting    sync.WaitGroup
	consumers   sync.WaitGroup
	once        sync.Once
}

func newAsyncDispatcher(opt Options, gate *recordingGate) *asyncDispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &asyncDispatcher{
		ctx:         ctx,
		cancel:      cancel,
		newOp:       opt.AsyncOperation,
		stats:       opt.Stats,
		gate:        gate,
		completions: make(chan completion, opt.QueueSize),
	}
	d.consumers.Add(opt.Concurrency)
	for i := 0; i < opt.Concurrency; i++ {
		go d.consume()
	}
	return d
}

func (d *asyncDispatcher) consume() {
	defer d.consumers.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case c := <-d.completions:
			d.gate.complete(c.ctx, c.latency, c.err)
			d.pending.Add(-1)
		}
	}
}

func (d *asyncDispatcher) submit() error {
	d.stats.IncSubmitted()
	if d.closed.Load() {
		return pool.ErrPoolClosed
	}
	op := d.newOp()
	start := time.Now()
	future := startSafely(d.ctx, op)
	d.stats.IncStarted()
	d.pending.Add(1)
	d.awaiting.Add(1)
	go d.await(start, future)
	return nil
}

func (d *asyncDispatcher) await(start time.Time, future <-chan error) {
	defer d.awaiting.Done()
	var c completion
	select {
	case err := <-future:
		c = completion{ctx: d.ctx, latency: time.Since(start), err: err}
	case <-d.ctx.Done():
		d.stats.IncAbandoned()
		d.pending.Add(-1)
		return
	}
	select {
	case d.completions <- c:
	case <-d.ctx.Done():
		d.stats.IncAbandoned()
		d.pending.Add(-1)
	}
}

func (d *asyncDispatcher) warm(ctx context.Context) {
	future := startSafely(ctx, d.newOp())
	select {
	case <-future:
	case <-ctx.Done():
	}
}

func (d *asyncDispatcher) drain(ctx context.Context) bool {
	if d.pending.Load() == 0 {
		return true
	}
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return d.pending.Load() == 0
		case <-ticker.C:
			if d.pending.Load() == 0 {
				return true
			}
		}
	}
}

func (d *asyncDispatcher) inFlight() int64 {
	return d.pending.Load()
}

// shutdown cancels every outstanding future. Completions that resolved but
// were not yet consumed are counted as abandoned, so every started request
// is accounted for once shutdown returns.
func (d *asyncDispatcher) shutdown() {
	d.once.Do(func() {
		d.closed.Store(true)
		d.gate.close()
		d.cancel()

		// Both wait on the cancelled context, so they return promptly.
		d.awaiting.Wait()
		d.consumers.Wait()
		for {
			select {
			case <-d.completions:
				d.stats.IncAbandoned()
				d.pending.Add(-1)
			default:
				return
			}
		}
	})
}
