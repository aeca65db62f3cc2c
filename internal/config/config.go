package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/runner"
)

type Mode string

const (
	ModeSync  Mode = "sync"
	ModeAsync Mode = "async"
)

type TargetKind string

const (
	TargetSleep    TargetKind = "sleep"
	TargetHTTP     TargetKind = "http"
	TargetPostgres TargetKind = "postgres"
	TargetRedis    TargetKind = "redis"
)

type ReportFormat string

const (
	ReportText ReportFormat = "text"
	ReportJSON ReportFormat = "json"
	ReportYAML ReportFormat = "yaml"
	ReportHTML ReportFormat = "html"
)

const (
	DefaultValueScale     = 1000.0
	DefaultRedisValueSize = 1024
	DefaultFeatureCount   = 10
)

type Config struct {
	Rate               int           `mapstructure:"rate"`
	Duration           int           `mapstructure:"duration"` // seconds
	Concurrency        int           `mapstructure:"concurrency"`
	Warmup             int           `mapstructure:"warmup"` // negative selects the runner default
	WarmupPause        time.Duration `mapstructure:"warmup_pause"`
	Tick               time.Duration `mapstructure:"tick"`
	Pacing             string        `mapstructure:"pacing"`
	QueueSize          int           `mapstructure:"queue_size"`
	DrainTimeout       time.Duration `mapstructure:"drain_timeout"`
	HistogramMax       time.Duration `mapstructure:"histogram_max"`
	SignificantFigures int           `mapstructure:"significant_figures"`
	Stages             []Stage       `mapstructure:"stages"`
	Mode               Mode          `mapstructure:"mode"`

	Output       string       `mapstructure:"output"`
	ValueScale   float64      `mapstructure:"value_scale"`
	ReportFormat ReportFormat `mapstructure:"report_format"`
	LogLevel     string       `mapstructure:"log_level"`
	LogErrors    bool         `mapstructure:"log_errors"`
	Progress     bool         `mapstructure:"progress"`
	Dashboard    bool         `mapstructure:"dashboard"`
	Thresholds   []string     `mapstructure:"thresholds"`
	MetricsAddr  string       `mapstructure:"metrics_addr"`
	ConfigFile   string       `mapstructure:"-"`

	Target  TargetConfig  `mapstructure:"target"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type Stage struct {
	Name    string      `mapstructure:"name"`
	Type    string      `mapstructure:"type"`
	RPS     int         `mapstructure:"rps"`
	FromRPS int         `mapstructure:"from_rps"`
	ToRPS   int         `mapstructure:"to_rps"`
	Ticks   int         `mapstructure:"ticks"`
	Steps   []StageStep `mapstructure:"steps"`
}

type StageStep struct {
	RPS   int `mapstructure:"rps"`
	Ticks int `mapstructure:"ticks"`
}

type TargetConfig struct {
	Kind TargetKind `mapstructure:"kind"`

	Sleep       time.Duration `mapstructure:"sleep"`
	SleepJitter time.Duration `mapstructure:"sleep_jitter"`

	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
	Body    string            `mapstructure:"body"`
	Timeout time.Duration     `mapstructure:"timeout"`

	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Features int    `mapstructure:"features"`  // feature scores written per object
	MaxConns int    `mapstructure:"max_conns"` // 0 uses concurrency
	Sample   string `mapstructure:"sample"`    // CSV of object_id,object_version_id rows
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Op        string `mapstructure:"op"` // read, write or featurestore
	ValueSize int    `mapstructure:"value_size"`
	KeyPrefix string `mapstructure:"key_prefix"`
	Keys      int    `mapstructure:"keys"` // key space size; 0 uses a single row

	// featurestore op only
	Features     int    `mapstructure:"features"`      // feature scores written per object
	FeaturesFile string `mapstructure:"features_file"` // CSV with an id column; overrides Features
	Sample       string `mapstructure:"sample"`        // CSV of object_id,object_version_id rows
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether any tracing was requested.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// ShouldPropagate reports whether W3C trace headers should be injected into
// outgoing requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Enabled()
}

// Default returns the configuration used before the config file and flags
// are applied.
func Default() Config {
	run := runner.DefaultConfig()
	return Config{
		Concurrency:        run.Concurrency,
		Warmup:             run.WarmupRequests,
		Tick:               run.Tick,
		Pacing:             string(run.Pacing),
		QueueSize:          run.QueueSize,
		HistogramMax:       run.HistogramMax,
		SignificantFigures: run.SignificantFigures,
		Mode:               ModeSync,
		ValueScale:         DefaultValueScale,
		ReportFormat:       ReportText,
		LogLevel:           "info",
		Target: TargetConfig{
			Kind:    TargetSleep,
			Sleep:   time.Millisecond,
			Method:  "GET",
			Headers: map[string]string{},
			Timeout: 30 * time.Second,
			Postgres: PostgresConfig{
				Features: DefaultFeatureCount,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				Op:        "read",
				ValueSize: DefaultRedisValueSize,
				KeyPrefix: "loadrunner",
				Features:  DefaultFeatureCount,
			},
		},
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// RunConfig converts the loaded settings into the runner's Config.
func (c Config) RunConfig() runner.Config {
	return runner.Config{
		RequestsPerSecond:  c.Rate,
		DurationSeconds:    c.Duration,
		Concurrency:        c.Concurrency,
		WarmupRequests:     c.Warmup,
		WarmupPause:        c.WarmupPause,
		Tick:               c.Tick,
		Pacing:             runner.Pacing(c.Pacing),
		QueueSize:          c.QueueSize,
		DrainTimeout:       c.DrainTimeout,
		Stages:             toRunnerStages(c.Stages),
		HistogramMax:       c.HistogramMax,
		SignificantFigures: c.SignificantFigures,
	}
}

func toRunnerStages(stages []Stage) []runner.Stage {
	if len(stages) == 0 {
		return nil
	}
	out := make([]runner.Stage, 0, len(stages))
	for _, s := range stages {
		rs := runner.Stage{
			Name:    s.Name,
			Type:    runner.StageType(s.Type),
			RPS:     s.RPS,
			FromRPS: s.FromRPS,
			ToRPS:   s.ToRPS,
			Ticks:   s.Ticks,
		}
		for _, step := range s.Steps {
			rs.Steps = append(rs.Steps, runner.StageStep{RPS: step.RPS, Ticks: step.Ticks})
		}
		out = append(out, rs)
	}
	return out
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if err := c.RunConfig().Validate(); err != nil {
		var ve runner.ValidationError
		if errors.As(err, &ve) {
			issues = append(issues, ve.Issues()...)
		} else {
			issues = append(issues, err.Error())
		}
	}

	switch c.Mode {
	case ModeSync, ModeAsync:
	default:
		issues = append(issues, fmt.Sprintf("mode must be 'sync' or 'async', got %q", c.Mode))
	}
	switch c.ReportFormat {
	case ReportText, ReportJSON, ReportYAML, ReportHTML:
	default:
		issues = append(issues, fmt.Sprintf("report format must be one of text, json, yaml or html, got %q", c.ReportFormat))
	}
	if c.ValueScale <= 0 {
		issues = append(issues, "value scale must be > 0")
	}

	issues = append(issues, validateTarget(c.Target)...)
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings returns advisory messages about a valid but risky configuration.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high rate configured (%d requests per tick); ensure you have authorization to test the target system", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d workers); ensure you have authorization to test the target system", c.Concurrency))
	}
	if c.DrainTimeout == 0 && c.Duration > 0 {
		warnings = append(warnings, "in-flight requests are abandoned at the end of the run; latencies of slow requests will be missing (set --drain-timeout to wait)")
	}
	return warnings
}

func validateTarget(t TargetConfig) []string {
	var issues []string
	if t.Timeout < 0 {
		issues = append(issues, "target: timeout must be >= 0")
	}
	switch t.Kind {
	case TargetSleep:
		if t.Sleep < 0 || t.SleepJitter < 0 {
			issues = append(issues, "sleep: sleep and jitter must be >= 0")
		}
	case TargetHTTP:
		if strings.TrimSpace(t.URL) == "" {
			issues = append(issues, "http: url is required (use --help for usage information)")
		}
	case TargetPostgres:
		if strings.TrimSpace(t.Postgres.DSN) == "" {
			issues = append(issues, "postgres: dsn is required")
		}
		if t.Postgres.Features < 1 {
			issues = append(issues, "postgres: features must be >= 1")
		}
		if t.Postgres.MaxConns < 0 {
			issues = append(issues, "postgres: max_conns must be >= 0")
		}
	case TargetRedis:
		if strings.TrimSpace(t.Redis.Addr) == "" {
			issues = append(issues, "redis: addr is required")
		}
		switch t.Redis.Op {
		case "read", "write":
		case "featurestore":
			if t.Redis.Features < 1 && strings.TrimSpace(t.Redis.FeaturesFile) == "" {
				issues = append(issues, "redis: features must be >= 1 unless features_file is set")
			}
		default:
			issues = append(issues, fmt.Sprintf("redis: op must be 'read', 'write' or 'featurestore', got %q", t.Redis.Op))
		}
		if t.Redis.ValueSize < 1 {
			issues = append(issues, "redis: value_size must be >= 1")
		}
		if t.Redis.Keys < 0 {
			issues = append(issues, "redis: keys must be >= 0")
		}
	default:
		issues = append(issues, fmt.Sprintf("target must be 'sleep', 'http', 'postgres' or 'redis', got %q", t.Kind))
	}
	return issues
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	return issues
}
