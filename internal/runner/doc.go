// Package runner is the load-runner core: it paces request operations at a
// fixed per-tick rate, runs them on a run-scoped worker pool and records the
// latency of every successful completion into an HDR histogram.
//
// # Basic Usage
//
//	cfg := runner.DefaultConfig()
//	cfg.RequestsPerSecond = 100
//	cfg.DurationSeconds = 30
//	cfg.Concurrency = 8
//	res, err := runner.RunLoad(ctx, cfg, runner.Shared(myOperation))
//	_ = res.Histogram.Export(os.Stdout, 1000.0)
//
// # Operations
//
// An [Operation] blocks until its request finishes. An [AsyncOperation]
// returns a future instead; the runner measures from Start until the future
// resolves. A [Factory] produces one operation per scheduled request.
//
// # Ticks
//
// Each tick submits the tick's request count, either back-to-back
// ([PacingBurst]) or spread over the tick ([PacingUniform]), then sleeps for
// whatever is left of the tick. A tick that overruns is not compensated; it is
// counted in Counts.OverrunTicks. [Stage] lists replace the fixed rate with a
// per-tick plan (constant, ramp or step).
//
// # Warmup
//
// WarmupRequests operations run one after another before measuring. Their
// latencies and counters are discarded.
//
// # Termination
//
// Once the last tick has been submitted the runner shuts its pool down.
// In-flight operations see a cancelled context and their late completions are
// counted as abandoned, never recorded. Set DrainTimeout to wait for them
// first.
//
// # Failures
//
// Failed operations are never recorded in the histogram. They are counted in
// Counts.Failed, classified in Result.Failures and passed to the optional
// [FailureSink].
package runner
