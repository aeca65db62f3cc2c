package target

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
)

func TestBuildSleepTarget(t *testing.T) {
	cfg := config.Default().Target
	cfg.Sleep = 2 * time.Millisecond

	tgt, err := Build(context.Background(), cfg, Options{})
	require.NoError(t, err)
	defer tgt.Close()

	assert.Equal(t, config.TargetSleep, tgt.Kind)
	assert.Equal(t, "2ms", tgt.Endpoint)

	start := time.Now()
	require.NoError(t, tgt.Factory()().Do(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)

	err = <-tgt.AsyncFactory()().Start(context.Background())
	assert.NoError(t, err)
}

func TestBuildHTTPTargetRequiresURL(t *testing.T) {
	cfg := config.Default().Target
	cfg.Kind = config.TargetHTTP

	_, err := Build(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "target URL is required")
}

func TestBuildUnknownTarget(t *testing.T) {
	cfg := config.Default().Target
	cfg.Kind = "bigtable"
	_, err := Build(context.Background(), cfg, Options{})
	assert.Error(t, err)
}

func TestBuildPostgresRejectsBadDSN(t *testing.T) {
	cfg := config.Default().Target
	cfg.Kind = config.TargetPostgres
	cfg.Postgres.DSN = "postgres://%zz"
	_, err := Build(context.Background(), cfg, Options{})
	assert.ErrorContains(t, err, "postgres target")
}

func TestSleepHonorsCancellation(t *testing.T) {
	s := NewSleep(time.Hour, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := s.Do(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSleepJitterStaysInRange(t *testing.T) {
	s := NewSleep(time.Millisecond, 4*time.Millisecond)
	for i := 0; i < 200; i++ {
		d := s.next()
		require.GreaterOrEqual(t, d, time.Millisecond)
		require.Less(t, d, 5*time.Millisecond)
	}
}

func TestNilTargetClose(t *testing.T) {
	var tgt *Target
	assert.NoError(t, tgt.Close())
}
