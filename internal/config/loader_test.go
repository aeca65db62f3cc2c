package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{"false", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{"250ms", 250 * time.Millisecond},
		{"2", 2 * time.Second},
		{10, 10 * time.Second},
		{1.5, 1500 * time.Millisecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSettingReaderKeepsFirstError(t *testing.T) {
	var rate, conc int
	s := settingReader{settings: map[string]interface{}{
		"rate":        "fast",
		"concurrency": 4,
	}}
	s.intVal(&rate, "rate")
	s.intVal(&conc, "concurrency")

	if s.err == nil {
		t.Fatal("expected conversion error")
	}
	if conc != 0 {
		t.Errorf("reads after an error should be skipped, got concurrency %d", conc)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Default()
	settings := map[string]interface{}{
		"rate":          200,
		"duration":      30,
		"concurrency":   16,
		"warmup":        10,
		"drain_timeout": "2s",
		"pacing":        "Uniform",
		"mode":          "async",
		"value_scale":   1.0,
		"thresholds":    []interface{}{"latency:p99 < 5"},
		"target": map[string]interface{}{
			"kind": "redis",
			"redis": map[string]interface{}{
				"addr":       "cache:6379",
				"op":         "write",
				"value_size": 2048,
			},
			"headers": map[string]interface{}{
				"x-run": "nightly",
			},
		},
		"tracing": map[string]interface{}{
			"endpoint":    "otel:4317",
			"sample_rate": 0.25,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Rate != 200 || cfg.Duration != 30 || cfg.Concurrency != 16 || cfg.Warmup != 10 {
		t.Errorf("load settings not applied: %+v", cfg)
	}
	if cfg.DrainTimeout != 2*time.Second {
		t.Errorf("DrainTimeout = %v, want 2s", cfg.DrainTimeout)
	}
	if cfg.Pacing != "uniform" {
		t.Errorf("Pacing = %q, want uniform", cfg.Pacing)
	}
	if cfg.Mode != ModeAsync {
		t.Errorf("Mode = %q, want async", cfg.Mode)
	}
	if cfg.ValueScale != 1.0 {
		t.Errorf("ValueScale = %v, want 1", cfg.ValueScale)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Target.Kind != TargetRedis || cfg.Target.Redis.Addr != "cache:6379" || cfg.Target.Redis.Op != "write" {
		t.Errorf("redis target not applied: %+v", cfg.Target.Redis)
	}
	if cfg.Target.Redis.ValueSize != 2048 {
		t.Errorf("ValueSize = %d, want 2048", cfg.Target.Redis.ValueSize)
	}
	if cfg.Target.Redis.KeyPrefix != "loadrunner" {
		t.Errorf("unset keys should keep defaults, got prefix %q", cfg.Target.Redis.KeyPrefix)
	}
	if cfg.Target.Headers["X-Run"] != "nightly" {
		t.Errorf("Headers = %v", cfg.Target.Headers)
	}
	if cfg.Tracing.Endpoint != "otel:4317" || cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("tracing not applied: %+v", cfg.Tracing)
	}
}

func TestApplyConfigSettingsTargetShorthand(t *testing.T) {
	cfg := Default()
	if err := applyConfigSettings(&cfg, map[string]interface{}{"target": "HTTP"}); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if cfg.Target.Kind != TargetHTTP {
		t.Errorf("Kind = %q, want http", cfg.Target.Kind)
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Default()
	cfg.Rate = 50

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--concurrency=5",
		"--method=PUT",
		"--header=X-Test=123",
		"--target=HTTP",
		"--drain-timeout=500ms",
		"--report-format=JSON",
		"--postgres-sample=rows.csv",
		"--redis-op=FeatureStore",
		"--redis-features=7",
		"--redis-sample=objects.csv",
		"--dashboard",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Rate != 50 {
		t.Errorf("unset flag overwrote Rate: %d", cfg.Rate)
	}
	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.Target.Method != "PUT" {
		t.Errorf("Method = %q, want PUT", cfg.Target.Method)
	}
	if cfg.Target.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Target.Headers["X-Test"])
	}
	if cfg.Target.Kind != TargetHTTP {
		t.Errorf("Kind = %q, want http", cfg.Target.Kind)
	}
	if cfg.DrainTimeout != 500*time.Millisecond {
		t.Errorf("DrainTimeout = %v", cfg.DrainTimeout)
	}
	if cfg.ReportFormat != ReportJSON {
		t.Errorf("ReportFormat = %q, want json", cfg.ReportFormat)
	}
	if cfg.Target.Postgres.Sample != "rows.csv" {
		t.Errorf("Postgres.Sample = %q, want rows.csv", cfg.Target.Postgres.Sample)
	}
	if r := cfg.Target.Redis; r.Op != "featurestore" || r.Features != 7 || r.Sample != "objects.csv" {
		t.Errorf("redis featurestore flags not applied: %+v", r)
	}
	if !cfg.Dashboard {
		t.Error("Dashboard flag not applied")
	}
}

func TestApplyFlagOverridesRejectsBadHeader(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--header=missing-separator"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(&cfg, fs); err == nil {
		t.Fatal("expected header format error")
	}
}

func TestParseStages(t *testing.T) {
	input := []interface{}{
		map[string]interface{}{
			"name":     "ramp-up",
			"type":     "RAMP",
			"from_rps": 10,
			"to_rps":   100,
			"ticks":    60,
		},
		map[string]interface{}{
			"type": "step",
			"steps": []interface{}{
				map[string]interface{}{"rps": 5, "ticks": 2},
				map[string]interface{}{"rps": 20, "duration": 3},
			},
		},
	}

	stages, err := parseStages(input)
	if err != nil {
		t.Fatalf("parseStages() error = %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("len(stages) = %d, want 2", len(stages))
	}

	ramp := stages[0]
	if ramp.Name != "ramp-up" || ramp.Type != "ramp" || ramp.FromRPS != 10 || ramp.ToRPS != 100 || ramp.Ticks != 60 {
		t.Errorf("ramp stage = %+v", ramp)
	}
	step := stages[1]
	if len(step.Steps) != 2 || step.Steps[1].RPS != 20 || step.Steps[1].Ticks != 3 {
		t.Errorf("step stage = %+v", step)
	}
}

func TestParseStagesRejectsNonList(t *testing.T) {
	if _, err := parseStages("ramp"); err == nil {
		t.Fatal("expected error for non-list stages")
	}
}
