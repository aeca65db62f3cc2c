// Package output renders run reports and exports histogram files.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
	"github.com/bimalkant-lauhny/loadrunner/internal/runner"
	"github.com/bimalkant-lauhny/loadrunner/internal/threshold"
)

// RunInfo describes how a run was configured.
type RunInfo struct {
	Target      string `json:"target" yaml:"target"`
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Mode        string `json:"mode" yaml:"mode"`
	Rate        int    `json:"rate" yaml:"rate"`
	Duration    int    `json:"duration_seconds" yaml:"duration_seconds"`
	Concurrency int    `json:"concurrency" yaml:"concurrency"`
}

// Report is the rendered outcome of a run.
type Report struct {
	RunID      string                 `json:"run_id" yaml:"run_id"`
	Started    time.Time              `json:"started" yaml:"started"`
	Run        RunInfo                `json:"run" yaml:"run"`
	Counts     metrics.Counts         `json:"counts" yaml:"counts"`
	Latency    metrics.LatencySummary `json:"latency" yaml:"latency"`
	Failures   []metrics.FailureCount `json:"failures,omitempty" yaml:"failures,omitempty"`
	Thresholds *ThresholdSummary      `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdSummary aggregates threshold outcomes.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// NewReport assembles a Report from a run result.
func NewReport(info RunInfo, res runner.Result, results []threshold.Result) Report {
	r := Report{
		RunID:      res.RunID,
		Started:    res.Started,
		Run:        info,
		Counts:     res.Stats,
		Failures:   res.Failures,
		Thresholds: summarizeThresholds(results),
	}
	if res.Histogram != nil {
		r.Latency = res.Histogram.Summary()
	}
	return r
}

// Snapshot returns the values thresholds are evaluated against.
func (r Report) Snapshot() threshold.Snapshot {
	return threshold.Snapshot{Latency: r.Latency, Counts: r.Counts}
}

func summarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	s := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		s.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	c := r.Counts
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Run ID:                                  %s\n", r.RunID)
	target := r.Run.Target
	if r.Run.Endpoint != "" {
		target += " " + r.Run.Endpoint
	}
	fmt.Fprintf(w, "Target:                                  %s (%s, %d req/tick for %d ticks, %d workers)\n",
		target, r.Run.Mode, r.Run.Rate, r.Run.Duration, r.Run.Concurrency)
	fmt.Fprintf(w, "Test runtime:                            %s\n", c.WallClock.Round(time.Millisecond))
	fmt.Fprintf(w, "Total requests submitted:                %d\n", c.Submitted)
	fmt.Fprintf(w, "Requests for which execution started:    %d\n", c.Started)
	fmt.Fprintf(w, "Requests for which latencies recorded:   %d\n", c.Completed)
	fmt.Fprintf(w, "Failed requests:                         %d\n", c.Failed)
	fmt.Fprintf(w, "Abandoned at shutdown:                   %d\n", c.Abandoned)
	if c.OverrunTicks > 0 {
		fmt.Fprintf(w, "Ticks that overran:                      %d\n", c.OverrunTicks)
	}

	if missing := c.Unrecorded(); missing > 0 {
		fmt.Fprintf(w, "\nNote: %d submitted requests have no recorded latency (failed, abandoned or never started).\n", missing)
		fmt.Fprintln(w, "The percentiles below exclude them and are biased toward faster requests.")
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		for _, f := range r.Failures {
			fmt.Fprintf(w, "  %s: %d\n", f.Kind, f.Count)
		}
	}

	l := r.Latency
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", l.Min)
	fmt.Fprintf(w, "  Max:             %s\n", l.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", l.Mean)
	fmt.Fprintf(w, "  StdDev:          %s\n", l.StdDev)
	fmt.Fprintf(w, "  P50:             %s\n", l.P50)
	fmt.Fprintf(w, "  P90:             %s\n", l.P90)
	fmt.Fprintf(w, "  P95:             %s\n", l.P95)
	fmt.Fprintf(w, "  P99:             %s\n", l.P99)
	fmt.Fprintf(w, "  P99.9:           %s\n", l.P999)

	if r.Thresholds != nil {
		fmt.Fprintf(w, "\nThresholds: %d/%d passed\n", r.Thresholds.Passed, r.Thresholds.Total)
		for _, t := range r.Thresholds.Results {
			status := "PASS"
			if !t.Pass {
				status = "FAIL"
			}
			fmt.Fprintf(w, "  %s %s (actual %.3f)\n", status, t.Threshold, t.Actual)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders r in the named format: text, json, yaml or html.
func Write(w io.Writer, format string, r Report, rec *metrics.Recorder) error {
	switch format {
	case "", "text":
		PrintReport(w, r)
		return nil
	case "json":
		return PrintJSONReport(w, r)
	case "yaml":
		return PrintYAMLReport(w, r)
	case "html":
		return GenerateHTMLReport(w, r, rec)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}
