package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/runner"
	"github.com/bimalkant-lauhny/loadrunner/internal/target"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(nil, &stdout, &stderr))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--rate=-1", "--duration=1"}, &stdout, &stderr)
	var ve config.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRunSleepTargetWritesReportAndHistogram(t *testing.T) {
	dir := t.TempDir()
	hist := filepath.Join(dir, "latency.hgrm")

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--rate=5", "--duration=2", "--tick=20ms", "--warmup=0",
		"--sleep=1ms", "--drain-timeout=1s", "--report-format=json",
		"--log-level=warn", "-o", hist,
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())

	var report struct {
		RunID  string `json:"run_id"`
		Counts struct {
			Submitted int64 `json:"submitted"`
			Completed int64 `json:"completed"`
		} `json:"counts"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report), stdout.String())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(10), report.Counts.Submitted)
	assert.Equal(t, int64(10), report.Counts.Completed)

	data, err := os.ReadFile(hist)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Percentile")
}

func TestRunFailsOnThreshold(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--rate=2", "--duration=1", "--tick=10ms", "--warmup=0", "--sleep=0s",
		"--drain-timeout=1s", "--threshold=requests:count > 100",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 thresholds failed")
	assert.Contains(t, stdout.String(), "FAIL requests:count > 100")
}

func TestRunHTTPTargetAsync(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--target=http", "--url=" + srv.URL, "--mode=async",
		"--rate=3", "--duration=2", "--tick=10ms", "--warmup=1", "--drain-timeout=1s",
	}, &stdout, &stderr)
	require.NoError(t, err, stderr.String())
	assert.Equal(t, int64(7), hits.Load())
	assert.Contains(t, stdout.String(), "Requests for which latencies recorded:   6")
}

func TestRunnerOptionsSelectsMode(t *testing.T) {
	tgt := target.New(config.TargetSleep, "", target.NewSleep(0, 0), nil)
	logger := logrus.New()

	cfg := config.Default()
	opts := runnerOptions(&cfg, tgt, &tracing.Provider{}, logger)
	assert.NotNil(t, opts.Operation)
	assert.Nil(t, opts.AsyncOperation)
	assert.Nil(t, opts.FailureSink)

	cfg.Mode = config.ModeAsync
	cfg.LogErrors = true
	opts = runnerOptions(&cfg, tgt, nil, logger)
	assert.Nil(t, opts.Operation)
	assert.NotNil(t, opts.AsyncOperation)
	assert.NotNil(t, opts.FailureSink)
	assert.NoError(t, <-opts.AsyncOperation().Start(context.Background()))
}

func TestDashboardInfo(t *testing.T) {
	tgt := target.New(config.TargetRedis, "featurestore", target.NewSleep(0, 0), nil)
	cfg := config.Default()
	cfg.Rate = 20
	cfg.Duration = 5
	cfg.Mode = config.ModeAsync

	r := runner.New(runnerOptions(&cfg, tgt, nil, logrus.New()))
	info := dashboardInfo(&cfg, tgt, r)
	assert.Equal(t, "redis", info.Target)
	assert.Equal(t, "featurestore", info.Endpoint)
	assert.Equal(t, "async", info.Mode)
	assert.Equal(t, 5, info.Ticks)
	assert.Equal(t, int64(100), info.Planned)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("debug", &buf)
	require.NoError(t, err)
	logger.Debug("hello")
	assert.True(t, strings.Contains(buf.String(), "hello"))

	_, err = newLogger("loud", &buf)
	assert.Error(t, err)
}
