package metrics

import (
	"sync/atomic"
	"time"
)

// RunStats holds the counters mutated by the dispatcher and controller during
// a run. All methods are safe for concurrent use.
type RunStats struct {
	submitted atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	abandoned atomic.Int64
	overruns  atomic.Int64
	wallClock atomic.Int64
}

// Counts is an immutable snapshot of RunStats.
type Counts struct {
	Submitted    int64         `json:"submitted" yaml:"submitted"`
	Started      int64         `json:"started" yaml:"started"`
	Completed    int64         `json:"completed" yaml:"completed"`
	Failed       int64         `json:"failed" yaml:"failed"`
	Abandoned    int64         `json:"abandoned" yaml:"abandoned"`
	OverrunTicks int64         `json:"overrun_ticks" yaml:"overrun_ticks"`
	WallClock    time.Duration `json:"-" yaml:"-"`

	WallClockMs int64 `json:"wall_clock_ms" yaml:"wall_clock_ms"`
}

func NewRunStats() *RunStats {
	return &RunStats{}
}

func (s *RunStats) IncSubmitted() { s.submitted.Add(1) }
func (s *RunStats) IncStarted()   { s.started.Add(1) }
func (s *RunStats) IncCompleted() { s.completed.Add(1) }
func (s *RunStats) IncFailed()    { s.failed.Add(1) }
func (s *RunStats) IncAbandoned() { s.abandoned.Add(1) }
func (s *RunStats) IncOverrun()   { s.overruns.Add(1) }

// SetWallClock stores the measured duration of the submission loop.
func (s *RunStats) SetWallClock(d time.Duration) {
	s.wallClock.Store(int64(d))
}

// Reset zeroes every counter. Used after warmup.
func (s *RunStats) Reset() {
	s.submitted.Store(0)
	s.started.Store(0)
	s.completed.Store(0)
	s.failed.Store(0)
	s.abandoned.Store(0)
	s.overruns.Store(0)
	s.wallClock.Store(0)
}

// Snapshot reads all counters.
func (s *RunStats) Snapshot() Counts {
	wall := time.Duration(s.wallClock.Load())
	return Counts{
		Submitted:    s.submitted.Load(),
		Started:      s.started.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
		Abandoned:    s.abandoned.Load(),
		OverrunTicks: s.overruns.Load(),
		WallClock:    wall,
		WallClockMs:  wall.Milliseconds(),
	}
}

// InFlight is the number of started operations that have not yet resolved.
func (c Counts) InFlight() int64 {
	n := c.Started - c.Completed - c.Failed - c.Abandoned
	if n < 0 {
		return 0
	}
	return n
}

// Unrecorded is the number of submitted requests whose latency is missing
// from the histogram, for whatever reason (failure, abandonment, still queued).
func (c Counts) Unrecorded() int64 {
	n := c.Submitted - c.Completed
	if n < 0 {
		return 0
	}
	return n
}
