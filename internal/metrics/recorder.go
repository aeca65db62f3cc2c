package metrics

import (
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// DefaultHighestTrackable is the default latency ceiling (1 minute).
	DefaultHighestTrackable = time.Minute
	// DefaultSignificantFigures is the default HDR precision.
	DefaultSignificantFigures = 3

	lowestTrackableNanos = 1
	exportTicksPerHalf   = 5
)

// Recorder is a concurrency-safe latency histogram in nanoseconds.
//
// Values outside the trackable range are clamped: anything above the ceiling
// is recorded as the ceiling, anything below 1ns as 1ns. Record never fails.
type Recorder struct {
	mu   sync.Mutex
	hist *hdrhistogram.Histogram
}

// LatencySummary is a point-in-time view of a Recorder.
type LatencySummary struct {
	Count  int64         `json:"count" yaml:"count"`
	Min    time.Duration `json:"-" yaml:"-"`
	Max    time.Duration `json:"-" yaml:"-"`
	Mean   time.Duration `json:"-" yaml:"-"`
	StdDev time.Duration `json:"-" yaml:"-"`
	P50    time.Duration `json:"-" yaml:"-"`
	P90    time.Duration `json:"-" yaml:"-"`
	P95    time.Duration `json:"-" yaml:"-"`
	P99    time.Duration `json:"-" yaml:"-"`
	P999   time.Duration `json:"-" yaml:"-"`

	MinMs    float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs    float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs   float64 `json:"mean_ms" yaml:"mean_ms"`
	StdDevMs float64 `json:"stddev_ms" yaml:"stddev_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms    float64 `json:"p90_ms" yaml:"p90_ms"`
	P95Ms    float64 `json:"p95_ms" yaml:"p95_ms"`
	P99Ms    float64 `json:"p99_ms" yaml:"p99_ms"`
	P999Ms   float64 `json:"p999_ms" yaml:"p999_ms"`
}

// NewRecorder creates a Recorder tracking 1ns..highest at the given precision.
// Zero arguments fall back to DefaultHighestTrackable and DefaultSignificantFigures.
func NewRecorder(highest time.Duration, sigFigs int) *Recorder {
	if highest <= 0 {
		highest = DefaultHighestTrackable
	}
	if sigFigs < 1 || sigFigs > 5 {
		sigFigs = DefaultSignificantFigures
	}
	return &Recorder{
		hist: hdrhistogram.New(lowestTrackableNanos, int64(highest), sigFigs),
	}
}

// Record adds a single latency sample.
func (r *Recorder) Record(latency time.Duration) {
	r.RecordNanos(int64(latency))
}

// RecordNanos adds a single latency sample expressed in nanoseconds.
func (r *Recorder) RecordNanos(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v < r.hist.LowestTrackableValue() {
		v = r.hist.LowestTrackableValue()
	}
	if v > r.hist.HighestTrackableValue() {
		v = r.hist.HighestTrackableValue()
	}
	_ = r.hist.RecordValue(v)
}

// Reset drops every recorded sample.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist.Reset()
}

// TotalCount returns the number of recorded samples.
func (r *Recorder) TotalCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hist.TotalCount()
}

// HighestTrackable returns the clamp ceiling.
func (r *Recorder) HighestTrackable() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.hist.HighestTrackableValue())
}

// Quantile returns the latency at percentile q (0-100).
func (r *Recorder) Quantile(q float64) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(r.hist.ValueAtQuantile(q))
}

// Distribution returns the cumulative distribution brackets, ordered by
// increasing percentile.
func (r *Recorder) Distribution() []hdrhistogram.Bracket {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hist.TotalCount() == 0 {
		return nil
	}
	return r.hist.CumulativeDistributionWithTicks(exportTicksPerHalf)
}

// Export writes the percentile distribution as text, dividing every value by
// valueScale (1000.0 reports microseconds).
func (r *Recorder) Export(w io.Writer, valueScale float64) error {
	if valueScale <= 0 {
		valueScale = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.hist.PercentilesPrint(w, exportTicksPerHalf, valueScale)
	return err
}

// Summary computes aggregate latency figures.
func (r *Recorder) Summary() LatencySummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := LatencySummary{Count: r.hist.TotalCount()}
	if s.Count == 0 {
		return s
	}
	s.Min = time.Duration(r.hist.Min())
	s.Max = time.Duration(r.hist.Max())
	s.Mean = time.Duration(r.hist.Mean())
	s.StdDev = time.Duration(r.hist.StdDev())
	s.P50 = time.Duration(r.hist.ValueAtQuantile(50))
	s.P90 = time.Duration(r.hist.ValueAtQuantile(90))
	s.P95 = time.Duration(r.hist.ValueAtQuantile(95))
	s.P99 = time.Duration(r.hist.ValueAtQuantile(99))
	s.P999 = time.Duration(r.hist.ValueAtQuantile(99.9))

	s.MinMs = toMillis(s.Min)
	s.MaxMs = toMillis(s.Max)
	s.MeanMs = toMillis(s.Mean)
	s.StdDevMs = toMillis(s.StdDev)
	s.P50Ms = toMillis(s.P50)
	s.P90Ms = toMillis(s.P90)
	s.P95Ms = toMillis(s.P95)
	s.P99Ms = toMillis(s.P99)
	s.P999Ms = toMillis(s.P999)
	return s
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
