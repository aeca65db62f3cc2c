package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional configuration file.
// Flags override file settings, which override Default.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(&cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Target.Method = strings.ToUpper(cfg.Target.Method)
	if cfg.Target.Headers == nil {
		cfg.Target.Headers = map[string]string{}
	}
	return &cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
// Keys are matched in snake, kebab and flat lowercase form.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	s := settingReader{settings: settings}

	s.intVal(&cfg.Rate, "rate")
	s.intVal(&cfg.Duration, "duration")
	s.intVal(&cfg.Concurrency, "concurrency")
	s.intVal(&cfg.Warmup, "warmup", "warmup_requests")
	s.durationVal(&cfg.WarmupPause, "warmup_pause", "warmup-pause", "warmuppause")
	s.durationVal(&cfg.Tick, "tick")
	s.lowerVal(&cfg.Pacing, "pacing")
	s.intVal(&cfg.QueueSize, "queue_size", "queue-size", "queuesize")
	s.durationVal(&cfg.DrainTimeout, "drain_timeout", "drain-timeout", "draintimeout")
	s.durationVal(&cfg.HistogramMax, "histogram_max", "histogram-max", "histogrammax")
	s.intVal(&cfg.SignificantFigures, "significant_figures", "significant-figures", "significantfigures")

	var mode, format string
	if s.lowerVal(&mode, "mode") {
		cfg.Mode = Mode(mode)
	}
	s.stringVal(&cfg.Output, "output")
	s.floatVal(&cfg.ValueScale, "value_scale", "value-scale", "valuescale")
	if s.lowerVal(&format, "report_format", "report-format", "reportformat") {
		cfg.ReportFormat = ReportFormat(format)
	}
	s.lowerVal(&cfg.LogLevel, "log_level", "log-level", "loglevel")
	s.boolVal(&cfg.LogErrors, "log_errors", "log-errors", "logerrors")
	s.boolVal(&cfg.Progress, "progress")
	s.boolVal(&cfg.Dashboard, "dashboard")
	s.listVal(&cfg.Thresholds, "thresholds")
	s.stringVal(&cfg.MetricsAddr, "metrics_addr", "metrics-addr", "metricsaddr")
	if s.err != nil {
		return s.err
	}

	if raw, ok := lookupSetting(settings, "stages"); ok {
		stages, err := parseStages(raw)
		if err != nil {
			return fmt.Errorf("stages: %w", err)
		}
		cfg.Stages = stages
	}
	if raw, ok := lookupSetting(settings, "target"); ok {
		if err := applyTargetSettings(&cfg.Target, raw); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}
	return nil
}

func parseStages(value interface{}) ([]Stage, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	stages := make([]Stage, 0, len(items))
	for idx, item := range items {
		entry, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		stage, err := buildStage(entry)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", idx, err)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

func buildStage(settings map[string]interface{}) (Stage, error) {
	var stage Stage
	s := settingReader{settings: settings}
	s.stringVal(&stage.Name, "name")
	s.lowerVal(&stage.Type, "type")
	s.intVal(&stage.RPS, "rps")
	s.intVal(&stage.FromRPS, "from_rps", "from-rps", "fromrps")
	s.intVal(&stage.ToRPS, "to_rps", "to-rps", "torps")
	s.intVal(&stage.Ticks, "ticks", "duration")
	if s.err != nil {
		return Stage{}, s.err
	}
	if raw, ok := lookupSetting(settings, "steps"); ok {
		items, err := toInterfaceSlice(raw)
		if err != nil {
			return Stage{}, fmt.Errorf("steps: %w", err)
		}
		for idx, item := range items {
			entry, err := toStringKeyMap(item)
			if err != nil {
				return Stage{}, fmt.Errorf("steps[%d]: %w", idx, err)
			}
			var step StageStep
			sr := settingReader{settings: entry}
			sr.intVal(&step.RPS, "rps")
			sr.intVal(&step.Ticks, "ticks", "duration")
			if sr.err != nil {
				return Stage{}, fmt.Errorf("steps[%d]: %w", idx, sr.err)
			}
			stage.Steps = append(stage.Steps, step)
		}
	}
	return stage, nil
}

func applyTargetSettings(t *TargetConfig, value interface{}) error {
	// A bare string selects the target kind.
	if kind, ok := value.(string); ok {
		t.Kind = TargetKind(strings.ToLower(strings.TrimSpace(kind)))
		return nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	s := settingReader{settings: settings}

	var kind string
	if s.lowerVal(&kind, "kind", "type") {
		t.Kind = TargetKind(kind)
	}
	s.durationVal(&t.Sleep, "sleep")
	s.durationVal(&t.SleepJitter, "sleep_jitter", "sleep-jitter", "sleepjitter")
	s.stringVal(&t.URL, "url")
	s.stringVal(&t.Method, "method")
	s.stringVal(&t.Body, "body")
	s.durationVal(&t.Timeout, "timeout")
	if s.err != nil {
		return s.err
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		if t.Headers == nil {
			t.Headers = map[string]string{}
		}
		for k, v := range hdrs {
			t.Headers[http.CanonicalHeaderKey(k)] = v
		}
	}
	if raw, ok := lookupSetting(settings, "postgres"); ok {
		pg, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		ps := settingReader{settings: pg}
		ps.stringVal(&t.Postgres.DSN, "dsn")
		ps.intVal(&t.Postgres.Features, "features")
		ps.intVal(&t.Postgres.MaxConns, "max_conns", "max-conns", "maxconns")
		ps.stringVal(&t.Postgres.Sample, "sample")
		if ps.err != nil {
			return fmt.Errorf("postgres: %w", ps.err)
		}
	}
	if raw, ok := lookupSetting(settings, "redis"); ok {
		rd, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		rs := settingReader{settings: rd}
		rs.stringVal(&t.Redis.Addr, "addr")
		rs.lowerVal(&t.Redis.Op, "op")
		rs.intVal(&t.Redis.ValueSize, "value_size", "value-size", "valuesize")
		rs.stringVal(&t.Redis.KeyPrefix, "key_prefix", "key-prefix", "keyprefix")
		rs.intVal(&t.Redis.Keys, "keys")
		rs.intVal(&t.Redis.Features, "features")
		rs.stringVal(&t.Redis.FeaturesFile, "features_file", "features-file", "featuresfile")
		rs.stringVal(&t.Redis.Sample, "sample")
		if rs.err != nil {
			return fmt.Errorf("redis: %w", rs.err)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	s := settingReader{settings: settings}
	s.stringVal(&t.Endpoint, "endpoint")
	s.lowerVal(&t.Protocol, "protocol")
	s.boolVal(&t.Insecure, "insecure")
	s.floatVal(&t.SampleRate, "sample_rate", "sample-rate", "samplerate")
	s.stringVal(&t.ServiceName, "service_name", "service-name", "servicename")
	s.boolVal(&t.Propagate, "propagate")
	return s.err
}
