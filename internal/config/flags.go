package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "loadrunner",
		Short:         "Fixed-rate load generator with HDR latency histograms",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Load control
	flags.IntP("rate", "r", 0, "Requests submitted per second")
	flags.IntP("duration", "d", 0, "Number of seconds to submit requests for")
	flags.IntP("concurrency", "c", def.Concurrency, "Worker goroutines (sync) or completion consumers (async)")
	flags.Int("warmup", def.Warmup, "Requests run before measuring (negative selects the default)")
	flags.Duration("warmup-pause", 0, "Idle time between warmup and the measured run")
	flags.Duration("tick", def.Tick, "Length of one pacing tick")
	flags.String("mode", string(def.Mode), "Operation mode: 'sync' or 'async'")
	flags.String("pacing", def.Pacing, "Spread of a tick's requests: 'burst' or 'uniform'")
	flags.Int("queue-size", def.QueueSize, "Worker pool queue capacity")
	flags.Duration("drain-timeout", 0, "Wait this long for in-flight requests at the end (0 abandons them)")
	flags.Duration("histogram-max", def.HistogramMax, "Highest trackable latency; slower requests are clamped")

	// Output
	flags.StringP("output", "o", "", "Write the percentile distribution to this file")
	flags.Float64("value-scale", def.ValueScale, "Divide exported latencies (ns) by this value")
	flags.String("report-format", string(def.ReportFormat), "Summary format: text, json, yaml or html")
	flags.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	flags.Bool("log-errors", false, "Log each failed request")
	flags.Bool("progress", false, "Print live counters to stderr during the run")
	flags.Bool("dashboard", false, "Show a live terminal dashboard during the run (q stops the run)")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'latency:p99 < 5')")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Target
	flags.String("target", string(def.Target.Kind), "Target: 'sleep', 'http', 'postgres' or 'redis'")
	flags.Duration("sleep", def.Target.Sleep, "Synthetic latency of the sleep target")
	flags.Duration("sleep-jitter", 0, "Random extra latency added by the sleep target")
	flags.String("url", "", "URL requested by the http target")
	flags.String("method", def.Target.Method, "HTTP method used by the http target")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", "", "Request body sent by the http target")
	flags.Duration("timeout", def.Target.Timeout, "Per-request timeout")
	flags.String("postgres-dsn", "", "Connection string of the postgres target")
	flags.Int("postgres-features", def.Target.Postgres.Features, "Feature scores written per object")
	flags.Int("postgres-max-conns", 0, "Postgres pool size (0 uses concurrency)")
	flags.String("postgres-sample", "", "CSV of object_id,object_version_id rows to rewrite")
	flags.String("redis-addr", def.Target.Redis.Addr, "Address of the redis target")
	flags.String("redis-op", def.Target.Redis.Op, "Redis operation: 'read', 'write' or 'featurestore'")
	flags.Int("redis-value-size", def.Target.Redis.ValueSize, "Bytes written per redis write")
	flags.Int("redis-keys", 0, "Number of distinct redis keys (0 uses a single row)")
	flags.Int("redis-features", def.Target.Redis.Features, "Feature scores written per object by the redis featurestore op")
	flags.String("redis-features-file", "", "CSV with an id column listing the feature ids for the redis featurestore op")
	flags.String("redis-sample", "", "CSV of object_id,object_version_id rows replayed by the redis featurestore op")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for request spans")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Fraction of requests traced")
	flags.String("tracing-service-name", "", "Service name reported with spans")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file. Only flags set explicitly take effect.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	o := overrider{fs: fs}

	o.setInt("rate", &cfg.Rate)
	o.setInt("duration", &cfg.Duration)
	o.setInt("concurrency", &cfg.Concurrency)
	o.setInt("warmup", &cfg.Warmup)
	o.setDuration("warmup-pause", &cfg.WarmupPause)
	o.setDuration("tick", &cfg.Tick)
	o.setLower("pacing", &cfg.Pacing)
	o.setInt("queue-size", &cfg.QueueSize)
	o.setDuration("drain-timeout", &cfg.DrainTimeout)
	o.setDuration("histogram-max", &cfg.HistogramMax)

	var mode, format, kind string
	if o.setLower("mode", &mode) {
		cfg.Mode = Mode(mode)
	}
	o.setString("output", &cfg.Output)
	o.setFloat("value-scale", &cfg.ValueScale)
	if o.setLower("report-format", &format) {
		cfg.ReportFormat = ReportFormat(format)
	}
	o.setLower("log-level", &cfg.LogLevel)
	o.setBool("log-errors", &cfg.LogErrors)
	o.setBool("progress", &cfg.Progress)
	o.setBool("dashboard", &cfg.Dashboard)
	o.setSlice("threshold", &cfg.Thresholds)
	o.setString("metrics-addr", &cfg.MetricsAddr)

	if o.setLower("target", &kind) {
		cfg.Target.Kind = TargetKind(kind)
	}
	o.setDuration("sleep", &cfg.Target.Sleep)
	o.setDuration("sleep-jitter", &cfg.Target.SleepJitter)
	o.setString("url", &cfg.Target.URL)
	o.setString("method", &cfg.Target.Method)
	o.setString("body", &cfg.Target.Body)
	o.setDuration("timeout", &cfg.Target.Timeout)
	o.setString("postgres-dsn", &cfg.Target.Postgres.DSN)
	o.setInt("postgres-features", &cfg.Target.Postgres.Features)
	o.setInt("postgres-max-conns", &cfg.Target.Postgres.MaxConns)
	o.setString("postgres-sample", &cfg.Target.Postgres.Sample)
	o.setString("redis-addr", &cfg.Target.Redis.Addr)
	o.setLower("redis-op", &cfg.Target.Redis.Op)
	o.setInt("redis-value-size", &cfg.Target.Redis.ValueSize)
	o.setInt("redis-keys", &cfg.Target.Redis.Keys)
	o.setInt("redis-features", &cfg.Target.Redis.Features)
	o.setString("redis-features-file", &cfg.Target.Redis.FeaturesFile)
	o.setString("redis-sample", &cfg.Target.Redis.Sample)

	o.setString("tracing-endpoint", &cfg.Tracing.Endpoint)
	o.setLower("tracing-protocol", &cfg.Tracing.Protocol)
	o.setBool("tracing-insecure", &cfg.Tracing.Insecure)
	o.setFloat("tracing-sample-rate", &cfg.Tracing.SampleRate)
	o.setString("tracing-service-name", &cfg.Tracing.ServiceName)

	if o.err != nil {
		return o.err
	}

	headers, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(headers) > 0 {
		if cfg.Target.Headers == nil {
			cfg.Target.Headers = map[string]string{}
		}
		for _, entry := range headers {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Target.Headers[key] = strings.TrimSpace(parts[1])
		}
	}
	return nil
}

// overrider copies explicitly set flags into config fields, keeping the first
// lookup error.
type overrider struct {
	fs  *pflag.FlagSet
	err error
}

func (o *overrider) changed(name string) bool {
	return o.err == nil && o.fs.Changed(name)
}

func (o *overrider) keep(name string, err error) bool {
	if err != nil {
		o.err = fmt.Errorf("%s: %w", name, err)
		return false
	}
	return true
}

func (o *overrider) setInt(name string, dst *int) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetInt(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = v
	return true
}

func (o *overrider) setFloat(name string, dst *float64) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetFloat64(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = v
	return true
}

func (o *overrider) setBool(name string, dst *bool) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetBool(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = v
	return true
}

func (o *overrider) setDuration(name string, dst *time.Duration) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetDuration(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = v
	return true
}

func (o *overrider) setString(name string, dst *string) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetString(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = strings.TrimSpace(v)
	return true
}

func (o *overrider) setLower(name string, dst *string) bool {
	if !o.setString(name, dst) {
		return false
	}
	*dst = strings.ToLower(*dst)
	return true
}

func (o *overrider) setSlice(name string, dst *[]string) bool {
	if !o.changed(name) {
		return false
	}
	v, err := o.fs.GetStringSlice(name)
	if !o.keep(name, err) {
		return false
	}
	*dst = v
	return true
}
