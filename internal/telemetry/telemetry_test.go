package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

func populated() (*metrics.RunStats, *metrics.Recorder) {
	stats := metrics.NewRunStats()
	rec := metrics.NewRecorder(0, 0)
	for i := 0; i < 5; i++ {
		stats.IncSubmitted()
		stats.IncStarted()
	}
	for i := 0; i < 3; i++ {
		stats.IncCompleted()
		rec.Record(10 * time.Millisecond)
	}
	stats.IncFailed()
	return stats, rec
}

func TestExporterCollectsRunStats(t *testing.T) {
	stats, rec := populated()
	e := New(stats, rec)

	expected := `
# HELP loadrunner_requests_submitted_total Requests handed to the dispatcher.
# TYPE loadrunner_requests_submitted_total counter
loadrunner_requests_submitted_total 5
# HELP loadrunner_requests_failed_total Requests that returned an error.
# TYPE loadrunner_requests_failed_total counter
loadrunner_requests_failed_total 1
# HELP loadrunner_requests_in_flight Started requests that have not resolved.
# TYPE loadrunner_requests_in_flight gauge
loadrunner_requests_in_flight 1
`
	err := testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected),
		"loadrunner_requests_submitted_total",
		"loadrunner_requests_failed_total",
		"loadrunner_requests_in_flight",
	)
	require.NoError(t, err)

	// Values are read at scrape time.
	stats.IncSubmitted()
	n, err := testutil.GatherAndCount(e.Registry(), "loadrunner_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExporterWithoutRecorder(t *testing.T) {
	e := New(metrics.NewRunStats(), nil)
	n, err := testutil.GatherAndCount(e.Registry(), "loadrunner_latency_seconds")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandlerServesText(t *testing.T) {
	stats, rec := populated()
	srv := httptest.NewServer(New(stats, rec).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "loadrunner_requests_recorded_total 3")
	assert.Contains(t, string(body), `loadrunner_latency_seconds{quantile="0.99"}`)
}

func TestServeStopsWithContext(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(metrics.NewRunStats(), nil).serve(ctx, ln, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeRejectsBadAddress(t *testing.T) {
	err := New(metrics.NewRunStats(), nil).Serve(context.Background(), "not-an-address", nil)
	assert.Error(t, err)
}
