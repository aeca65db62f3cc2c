package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

// ProgressReporter periodically prints live run counters.
type ProgressReporter struct {
	stats    *metrics.RunStats
	recorder *metrics.Recorder
	interval time.Duration
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// recorder may be nil.
func NewProgressReporter(stats *metrics.RunStats, recorder *metrics.Recorder, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		stats:    stats,
		recorder: recorder,
		interval: interval,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	p.start = time.Now()
	go p.run()
}

// Stop halts progress updates and terminates the current line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.writer, "\r"+p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	c := p.stats.Snapshot()
	rate := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(c.Submitted) / secs
	}
	line := fmt.Sprintf("Submitted: %d | Recorded: %d | Failed: %d | In flight: %d | Rate: %.1f/s",
		c.Submitted, c.Completed, c.Failed, c.InFlight(), rate)
	if p.recorder != nil && p.recorder.TotalCount() > 0 {
		line += fmt.Sprintf(" | P99: %s", p.recorder.Quantile(99).Round(time.Microsecond))
	}
	return line
}
