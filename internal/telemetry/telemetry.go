// Package telemetry exposes live run counters and latency quantiles in the
// Prometheus text format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

const namespace = "loadrunner"

var exportedQuantiles = []float64{50, 90, 99, 99.9}

// Exporter reads a run's RunStats and Recorder on every scrape.
type Exporter struct {
	registry *prometheus.Registry
}

// New registers collectors over stats and rec on a private registry.
// rec may be nil.
func New(stats *metrics.RunStats, rec *metrics.Recorder) *Exporter {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, read func(metrics.Counts) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats.Snapshot())) })
	}

	collectors := []prometheus.Collector{
		counter("requests_submitted_total", "Requests handed to the dispatcher.", func(c metrics.Counts) int64 { return c.Submitted }),
		counter("requests_started_total", "Requests whose execution started.", func(c metrics.Counts) int64 { return c.Started }),
		counter("requests_recorded_total", "Requests whose latency was recorded.", func(c metrics.Counts) int64 { return c.Completed }),
		counter("requests_failed_total", "Requests that returned an error.", func(c metrics.Counts) int64 { return c.Failed }),
		counter("requests_abandoned_total", "Requests discarded at shutdown.", func(c metrics.Counts) int64 { return c.Abandoned }),
		counter("tick_overruns_total", "Ticks whose submissions took longer than the tick.", func(c metrics.Counts) int64 { return c.OverrunTicks }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Started requests that have not resolved.",
		}, func() float64 { return float64(stats.Snapshot().InFlight()) }),
	}

	if rec != nil {
		for _, q := range exportedQuantiles {
			q := q
			collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Name:        "latency_seconds",
				Help:        "Recorded request latency at a quantile.",
				ConstLabels: prometheus.Labels{"quantile": strconv.FormatFloat(q/100, 'f', -1, 64)},
			}, func() float64 { return rec.Quantile(q).Seconds() }))
		}
	}

	reg.MustRegister(collectors...)
	return &Exporter{registry: reg}
}

// Registry returns the registry backing the exporter.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr and serves /metrics until ctx is done.
func (e *Exporter) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	return e.serve(ctx, ln, logger)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.WithField("addr", ln.Addr().String()).Info("serving metrics")
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
