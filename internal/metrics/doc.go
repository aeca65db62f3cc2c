// Package metrics holds the measurement side of a load run.
//
// # Recorder
//
// [Recorder] is an HDR histogram of request latencies in nanoseconds. It is
// safe for concurrent Record calls from many workers; Reset and Export are
// expected to run only between run phases, when nothing records.
//
//	rec := metrics.NewRecorder(time.Minute, 3)
//	rec.Record(elapsed)
//	_ = rec.Export(w, 1000.0) // values in microseconds
//
// Values above the configured ceiling are clamped to it, never dropped.
//
// # Run counters
//
// [RunStats] tracks submitted, started, completed, failed and abandoned
// requests with atomic counters. [Counts] is its snapshot.
//
// # Failures
//
// Failed operations never reach the histogram. [FailureTracker] keeps a
// per-error-type breakdown so the undercount stays visible in reports.
package metrics
