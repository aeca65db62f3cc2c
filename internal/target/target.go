// Package target builds the request operations a run drives: a synthetic
// sleep, an HTTP request, a featurestore write against Postgres or Redis
// and a Redis single-row read or write.
package target

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/runner"
)

// Target is a configured request operation plus the resources behind it.
type Target struct {
	Kind     config.TargetKind
	Endpoint string

	op    runner.Operation
	close func() error
}

// Options carries process-level settings that are not part of the target config.
type Options struct {
	Logger      logrus.FieldLogger
	Propagate   bool // inject W3C trace headers into HTTP requests
	Concurrency int  // sizes connection pools
}

// New wraps an arbitrary operation as a Target.
func New(kind config.TargetKind, endpoint string, op runner.Operation, closer func() error) *Target {
	return &Target{Kind: kind, Endpoint: endpoint, op: op, close: closer}
}

// Build connects to the configured target.
func Build(ctx context.Context, cfg config.TargetConfig, opt Options) (*Target, error) {
	logger := opt.Logger
	if logger == nil {
		logger = logrus.New()
	}
	logger = logger.WithField("target", string(cfg.Kind))

	switch cfg.Kind {
	case config.TargetSleep, "":
		return New(config.TargetSleep, cfg.Sleep.String(), NewSleep(cfg.Sleep, cfg.SleepJitter), nil), nil

	case config.TargetHTTP:
		op, err := NewHTTP(cfg, opt.Propagate)
		if err != nil {
			return nil, fmt.Errorf("http target: %w", err)
		}
		return New(cfg.Kind, op.Endpoint(), op, op.Close), nil

	case config.TargetPostgres:
		fs, closeFn, err := ConnectFeaturestore(ctx, cfg.Postgres, opt.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("postgres target: %w", err)
		}
		entry := logger.WithField("features", len(fs.featureIDs))
		if fs.objects.samples != nil {
			entry = entry.WithField("samples", fs.objects.samples.Len())
		}
		entry.Info("connected to featurestore")
		return New(cfg.Kind, "featurestore", fs, func() error { closeFn(); return nil }), nil

	case config.TargetRedis:
		if cfg.Redis.Op == "featurestore" {
			fs, closeFn, err := ConnectKVFeaturestore(ctx, cfg.Redis, opt.Concurrency)
			if err != nil {
				return nil, fmt.Errorf("redis target: %w", err)
			}
			entry := logger.WithFields(logrus.Fields{"addr": cfg.Redis.Addr, "features": len(fs.featureIDs)})
			if fs.objects.samples != nil {
				entry = entry.WithField("samples", fs.objects.samples.Len())
			}
			entry.Info("connected to redis featurestore")
			return New(cfg.Kind, cfg.Redis.Op, fs, closeFn), nil
		}
		kv, closeFn, err := ConnectKV(ctx, cfg.Redis, opt.Concurrency)
		if err != nil {
			return nil, fmt.Errorf("redis target: %w", err)
		}
		if err := kv.Setup(ctx); err != nil {
			_ = closeFn()
			return nil, fmt.Errorf("redis target setup: %w", err)
		}
		logger.WithFields(logrus.Fields{"addr": cfg.Redis.Addr, "op": cfg.Redis.Op}).Info("connected to redis")
		return New(cfg.Kind, cfg.Redis.Op, kv, closeFn), nil

	default:
		return nil, fmt.Errorf("unknown target %q", cfg.Kind)
	}
}

// Operation returns the underlying operation.
func (t *Target) Operation() runner.Operation {
	return t.op
}

// Factory hands out the target's operation for every request.
func (t *Target) Factory() runner.Factory {
	return runner.Shared(t.op)
}

// AsyncFactory resolves each request from its own goroutine, so the
// controller never blocks on the target.
func (t *Target) AsyncFactory() runner.AsyncFactory {
	return runner.SharedAsync(runner.Go(t.op.Do))
}

// Close releases connections held by the target.
func (t *Target) Close() error {
	if t == nil || t.close == nil {
		return nil
	}
	return t.close()
}

// ErrMissingKey is returned by a read of a key that does not exist.
var ErrMissingKey = errors.New("key not found")
