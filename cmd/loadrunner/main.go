package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/dashboard"
	"github.com/bimalkant-lauhny/loadrunner/internal/output"
	"github.com/bimalkant-lauhny/loadrunner/internal/runner"
	"github.com/bimalkant-lauhny/loadrunner/internal/target"
	"github.com/bimalkant-lauhny/loadrunner/internal/telemetry"
	"github.com/bimalkant-lauhny/loadrunner/internal/threshold"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel, stderr)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracing shutdown")
		}
	}()

	tgt, err := target.Build(ctx, cfg.Target, target.Options{
		Logger:      logger,
		Propagate:   tp.ShouldPropagate(),
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return err
	}
	defer tgt.Close()

	r := runner.New(runnerOptions(cfg, tgt, tp, logger))

	if cfg.MetricsAddr != "" {
		exporter := telemetry.New(r.Stats(), r.Recorder())
		go func() {
			if err := exporter.Serve(ctx, cfg.MetricsAddr, logger); err != nil {
				logger.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(
			dashboard.Sources{Stats: r.Stats(), Recorder: r.Recorder(), Failures: r.Failures()},
			dashboardInfo(cfg, tgt, r),
			cancel,
		)
		if err != nil {
			logger.WithError(err).Warn("dashboard unavailable, continuing without it")
		} else {
			// log lines would tear the terminal UI
			logger.SetOutput(io.Discard)
			dash.Start()
		}
	}

	var progress *output.ProgressReporter
	if cfg.Progress && dash == nil {
		progress = output.NewProgressReporter(r.Stats(), r.Recorder(), progressInterval, stderr)
		progress.Start()
	}

	res, runErr := r.Run(ctx)
	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
		logger.SetOutput(stderr)
	}

	info := output.RunInfo{
		Target:      string(tgt.Kind),
		Endpoint:    tgt.Endpoint,
		Mode:        string(cfg.Mode),
		Rate:        cfg.Rate,
		Duration:    r.Ticks(),
		Concurrency: cfg.Concurrency,
	}
	snapshot := threshold.Snapshot{Latency: res.Histogram.Summary(), Counts: res.Stats}
	results := threshold.NewEvaluator(thresholds).Evaluate(snapshot)
	report := output.NewReport(info, res, results)

	if err := output.Write(stdout, string(cfg.ReportFormat), report, res.Histogram); err != nil {
		return err
	}

	var exportErr error
	if cfg.Output != "" {
		exportErr = output.WriteHistogramFile(cfg.Output, res.Histogram, cfg.ValueScale)
		if exportErr == nil {
			logger.WithField("path", cfg.Output).Info("histogram written")
		}
	}

	switch {
	case runErr != nil:
		return runErr
	case exportErr != nil:
		return exportErr
	case !threshold.AllPassed(results):
		return fmt.Errorf("%d of %d thresholds failed", report.Thresholds.Failed, report.Thresholds.Total)
	}
	return nil
}

func runnerOptions(cfg *config.Config, tgt *target.Target, tp *tracing.Provider, logger logrus.FieldLogger) runner.Options {
	opts := runner.Options{
		Config: cfg.RunConfig(),
		Logger: logger,
	}
	if cfg.LogErrors {
		opts.FailureSink = runner.NewLoggingSink(logger)
	}

	spanName := tracing.SpanName(string(tgt.Kind), tgt.Endpoint)
	if cfg.Mode == config.ModeAsync {
		opts.AsyncOperation = runner.WithAsyncTracing(tgt.AsyncFactory(), tp.Tracer(), spanName)
	} else {
		opts.Operation = runner.WithTracing(tgt.Factory(), tp.Tracer(), spanName)
	}
	return opts
}

func dashboardInfo(cfg *config.Config, tgt *target.Target, r *runner.Runner) dashboard.RunInfo {
	return dashboard.RunInfo{
		Target:      string(tgt.Kind),
		Endpoint:    tgt.Endpoint,
		Mode:        string(cfg.Mode),
		Pacing:      cfg.Pacing,
		Rate:        cfg.Rate,
		Ticks:       r.Ticks(),
		Concurrency: cfg.Concurrency,
		Planned:     r.PlannedRequests(),
	}
}

func newLogger(level string, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)
	return logger, nil
}
