package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

// Result captures a finished run. Histogram is frozen once Run returns.
type Result struct {
	RunID     string
	Started   time.Time
	Histogram *metrics.Recorder
	Stats     metrics.Counts
	Failures  []metrics.FailureCount
}

// Runner paces operations at a fixed per-tick rate and records their latency.
type Runner struct {
	opt  Options
	plan *stagePlan
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt, plan: compileStagePlan(opt.Stages)}
}

// RunLoad runs newOperation at cfg's rate and returns the measured histogram.
func RunLoad(ctx context.Context, cfg Config, newOperation Factory) (Result, error) {
	return New(Options{Config: cfg, Operation: newOperation}).Run(ctx)
}

// RunLoadAsync is RunLoad for non-blocking operations.
func RunLoadAsync(ctx context.Context, cfg Config, newOperation AsyncFactory) (Result, error) {
	return New(Options{Config: cfg, AsyncOperation: newOperation}).Run(ctx)
}

// Ticks returns the number of ticks a run will take.
func (r *Runner) Ticks() int {
	if r.plan != nil {
		return r.plan.totalTicks()
	}
	return r.opt.DurationSeconds
}

// PlannedRequests returns how many requests the measured loop will submit
// if it runs to completion.
func (r *Runner) PlannedRequests() int64 {
	if r.plan != nil {
		return r.plan.totalRequests()
	}
	return int64(r.opt.RequestsPerSecond) * int64(r.opt.DurationSeconds)
}

// Recorder exposes the run's histogram so callers can observe it live.
func (r *Runner) Recorder() *metrics.Recorder { return r.opt.Recorder }

// Stats exposes the run's counters so callers can observe them live.
func (r *Runner) Stats() *metrics.RunStats { return r.opt.Stats }

// Failures exposes the run's failure breakdown so callers can observe it live.
func (r *Runner) Failures() *metrics.FailureTracker { return r.opt.Failures }

// Run blocks until every tick has been submitted, then shuts the run down.
// The returned Result is valid even when err is non-nil.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{
		RunID:     ulid.Make().String(),
		Started:   time.Now(),
		Histogram: r.opt.Recorder,
	}
	if err := r.opt.validate(); err != nil {
		return res, err
	}

	log := r.opt.Logger.WithField("run_id", res.RunID)

	gate := newRecordingGate(r.opt)
	var d dispatcher
	if r.opt.AsyncOperation != nil {
		d = newAsyncDispatcher(r.opt, gate)
	} else {
		d = newSyncDispatcher(r.opt, gate)
	}

	r.warmup(ctx, d, log)
	log.WithFields(logrus.Fields{
		"ticks":   r.Ticks(),
		"planned": r.PlannedRequests(),
	}).Debug("starting measured loop")

	loopStart := time.Now()
	err := r.loop(ctx, d, log)
	r.opt.Stats.SetWallClock(time.Since(loopStart))

	r.terminate(d, log)

	res.Stats = r.opt.Stats.Snapshot()
	res.Failures = r.opt.Failures.Breakdown()
	log.WithFields(logrus.Fields{
		"submitted": res.Stats.Submitted,
		"completed": res.Stats.Completed,
		"failed":    res.Stats.Failed,
		"abandoned": res.Stats.Abandoned,
	}).Info("run finished")
	return res, err
}

func (r *Runner) warmup(ctx context.Context, d dispatcher, log logrus.FieldLogger) {
	n := r.opt.WarmupRequests
	if n > 0 {
		log.WithField("requests", n).Debug("warming up")
		for i := 0; i < n && ctx.Err() == nil; i++ {
			d.warm(ctx)
		}
	}
	if r.opt.WarmupPause > 0 {
		_ = sleepCtx(ctx, r.opt.WarmupPause)
	}
	r.opt.Recorder.Reset()
	r.opt.Stats.Reset()
	r.opt.Failures.Reset()
}

func (r *Runner) loop(ctx context.Context, d dispatcher, log logrus.FieldLogger) error {
	pacer := newTickPacer(r.opt)
	ticks := r.Ticks()
	tick := r.opt.Tick

	for i := 0; i < ticks; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tickStart := time.Now()

		n := r.opt.RequestsPerSecond
		if r.plan != nil {
			n, _ = r.plan.requestsAt(i)
		}
		if err := pacer.submitTick(ctx, n, d.submit); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("tick %d: %w", i, err)
		}

		elapsed := time.Since(tickStart)
		if elapsed >= tick {
			r.opt.Stats.IncOverrun()
			log.WithFields(logrus.Fields{
				"tick":    i,
				"elapsed": elapsed,
			}).Debug("tick overran its interval")
			continue
		}
		log.WithFields(logrus.Fields{
			"tick":     i,
			"requests": n,
		}).Debug("tick submitted")
		if err := sleepCtx(ctx, tick-elapsed); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) terminate(d dispatcher, log logrus.FieldLogger) {
	if r.opt.DrainTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), r.opt.DrainTimeout)
		if !d.drain(ctx) {
			log.WithFields(logrus.Fields{
				"timeout":   r.opt.DrainTimeout,
				"remaining": d.inFlight(),
			}).Warn("in-flight requests did not finish before drain timeout")
		}
		cancel()
	}
	d.shutdown()
}
