package runner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
	"github.com/bimalkant-lauhny/loadrunner/internal/pool"
)

const (
	DefaultWarmupRequests = 5
	DefaultTick           = time.Second
)

// Pacing selects how a tick's requests are spread over the tick.
type Pacing string

const (
	// PacingBurst submits the whole tick back-to-back, then sleeps.
	PacingBurst Pacing = "burst"
	// PacingUniform spaces submissions evenly across the tick.
	PacingUniform Pacing = "uniform"
)

// Config describes one run. Units are taken as given: the core does not
// reinterpret them.
type Config struct {
	RequestsPerSecond int           // requests submitted per tick
	DurationSeconds   int           // number of ticks
	Concurrency       int           // worker goroutines (sync) or completion consumers (async)
	WarmupRequests    int           // requests run before measuring; negative selects the default
	WarmupPause       time.Duration // idle time between warmup and the measured loop

	Tick         time.Duration // length of one tick (default 1s)
	Pacing       Pacing
	QueueSize    int           // worker pool queue capacity
	DrainTimeout time.Duration // 0 abandons in-flight work at the end of the run
	Stages       []Stage       // optional per-tick rate plan; overrides RequestsPerSecond and DurationSeconds

	HistogramMax       time.Duration
	SignificantFigures int
}

// DefaultConfig returns a Config with the reference defaults filled in.
func DefaultConfig() Config {
	return Config{
		Concurrency:        1,
		WarmupRequests:     DefaultWarmupRequests,
		Tick:               DefaultTick,
		Pacing:             PacingBurst,
		QueueSize:          pool.DefaultQueueSize,
		HistogramMax:       metrics.DefaultHighestTrackable,
		SignificantFigures: metrics.DefaultSignificantFigures,
	}
}

// ValidationError lists every problem found in a Config.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "invalid run config"
	}
	return fmt.Sprintf("invalid run config: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the Config without modifying it.
func (c Config) Validate() error {
	var issues []string
	if c.RequestsPerSecond < 0 {
		issues = append(issues, "requests per second must be >= 0")
	}
	if c.DurationSeconds < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Tick < 0 {
		issues = append(issues, "tick must be >= 0")
	}
	if c.QueueSize < 0 {
		issues = append(issues, "queue size must be >= 0")
	}
	if c.DrainTimeout < 0 {
		issues = append(issues, "drain timeout must be >= 0")
	}
	if c.WarmupPause < 0 {
		issues = append(issues, "warmup pause must be >= 0")
	}
	switch c.Pacing {
	case "", PacingBurst, PacingUniform:
	default:
		issues = append(issues, fmt.Sprintf("unknown pacing %q (use burst or uniform)", c.Pacing))
	}
	issues = append(issues, validateStages(c.Stages)...)
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func (c *Config) normalize() {
	if c.WarmupRequests < 0 {
		c.WarmupRequests = DefaultWarmupRequests
	}
	if c.Tick == 0 {
		c.Tick = DefaultTick
	}
	if c.Pacing == "" {
		c.Pacing = PacingBurst
	}
	if c.QueueSize == 0 {
		c.QueueSize = pool.DefaultQueueSize
	}
	if c.HistogramMax <= 0 {
		c.HistogramMax = metrics.DefaultHighestTrackable
	}
	if c.SignificantFigures <= 0 {
		c.SignificantFigures = metrics.DefaultSignificantFigures
	}
}

// FailureSink observes failed operations. Failures never reach the histogram.
type FailureSink interface {
	RecordFailure(err error)
}

// FailureSinkFunc adapts a function to FailureSink.
type FailureSinkFunc func(err error)

func (f FailureSinkFunc) RecordFailure(err error) { f(err) }

// Options configure a Runner.
type Options struct {
	Config

	// Exactly one of Operation or AsyncOperation must be set.
	Operation      Factory
	AsyncOperation AsyncFactory

	FailureSink FailureSink        // optional, in addition to the built-in breakdown
	Logger      logrus.FieldLogger // defaults to a discarding logger

	// Optional pre-built instruments, so callers can observe a run while it
	// is in progress. Fresh ones are created when nil.
	Recorder *metrics.Recorder
	Stats    *metrics.RunStats
	Failures *metrics.FailureTracker

	LimiterFactory func(every time.Duration) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	o.Config.normalize()
	if o.Logger == nil {
		o.Logger = discardLogger()
	}
	if o.Recorder == nil {
		o.Recorder = metrics.NewRecorder(o.HistogramMax, o.SignificantFigures)
	}
	if o.Stats == nil {
		o.Stats = metrics.NewRunStats()
	}
	if o.Failures == nil {
		o.Failures = metrics.NewFailureTracker()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(every time.Duration) *rate.Limiter {
			return rate.NewLimiter(rate.Every(every), 1)
		}
	}
}

func (o Options) validate() error {
	err := o.Config.Validate()
	var issues []string
	if ve, ok := err.(ValidationError); ok {
		issues = ve.Issues()
	}
	switch {
	case o.Operation == nil && o.AsyncOperation == nil:
		issues = append(issues, "an operation factory is required")
	case o.Operation != nil && o.AsyncOperation != nil:
		issues = append(issues, "operation and async operation are mutually exclusive")
	}
	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
