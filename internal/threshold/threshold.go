// Package threshold evaluates pass/fail assertions against a finished run.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // latency, failed, requests, recorded, abandoned
	Aggregate string  // p50, p99, avg, max, rate, count, ...
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // latency values are milliseconds
	Raw       string
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Snapshot is what thresholds are evaluated against.
type Snapshot struct {
	Latency metrics.LatencySummary
	Counts  metrics.Counts
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validMetrics    = []string{"latency", "failed", "requests", "recorded", "abandoned"}
	validAggregates = []string{"p50", "p90", "p95", "p99", "p999", "avg", "mean", "min", "max", "stddev", "rate", "count"}
	validOperators  = []string{"<", "<=", ">", ">=", "=="}
)

// Evaluator evaluates thresholds against a run snapshot.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks all thresholds against the snapshot.
func (e *Evaluator) Evaluate(snap Snapshot) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, snap))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, snap Snapshot) Result {
	actual, err := extractMetricValue(t, snap)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "PASS"
	if !pass {
		status = "FAIL"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.3f %s %.3f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string. Supported forms:
//
//	latency:p99 < 5        latency percentile in ms (p50, p90, p95, p99, p999)
//	latency:avg < 2        also min, max, stddev
//	failed:rate < 0.01     failed / (completed + failed)
//	failed:count == 0
//	requests:rate >= 100   submitted per second of wall clock
//	recorded:rate > 0.99   completed / submitted
//	abandoned:count < 10
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p99 < 5')", s)
	}
	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", valueStr, err)
	}
	if !contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !contains(validAggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", aggregate, strings.Join(validAggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every threshold, reporting all failures at once.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, snap Snapshot) (float64, error) {
	switch t.Metric {
	case "latency":
		return extractLatency(t.Aggregate, snap.Latency)
	case "failed":
		return extractCountOrRate(t, snap.Counts.Failed, snap.Counts.Completed+snap.Counts.Failed)
	case "recorded":
		return extractCountOrRate(t, snap.Counts.Completed, snap.Counts.Submitted)
	case "abandoned":
		return extractCountOrRate(t, snap.Counts.Abandoned, snap.Counts.Started)
	case "requests":
		switch t.Aggregate {
		case "count":
			return float64(snap.Counts.Submitted), nil
		case "rate":
			secs := snap.Counts.WallClock.Seconds()
			if secs <= 0 {
				return 0, nil
			}
			return float64(snap.Counts.Submitted) / secs, nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for requests (use 'count' or 'rate')", t.Aggregate)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatency(aggregate string, s metrics.LatencySummary) (float64, error) {
	switch aggregate {
	case "p50":
		return s.P50Ms, nil
	case "p90":
		return s.P90Ms, nil
	case "p95":
		return s.P95Ms, nil
	case "p99":
		return s.P99Ms, nil
	case "p999":
		return s.P999Ms, nil
	case "avg", "mean":
		return s.MeanMs, nil
	case "min":
		return s.MinMs, nil
	case "max":
		return s.MaxMs, nil
	case "stddev":
		return s.StdDevMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func extractCountOrRate(t Threshold, n, of int64) (float64, error) {
	switch t.Aggregate {
	case "count":
		return float64(n), nil
	case "rate":
		if of == 0 {
			return 0, nil
		}
		return float64(n) / float64(of), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", t.Aggregate, t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
