package target

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type kvClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// KV reads or writes a fixed-size random value. With Keys > 0 requests
// rotate over that many rows, otherwise every request hits one row.
type KV struct {
	client kvClient
	write  bool
	keys   []string
	value  string
	next   atomic.Uint64
}

func NewKV(client kvClient, cfg config.RedisConfig) *KV {
	n := cfg.Keys
	if n < 1 {
		n = 1
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "loadrunner"
	}
	keys := make([]string, n)
	for i := range keys {
		keys[i] = prefix + ":" + strconv.Itoa(i)
	}
	size := cfg.ValueSize
	if size < 1 {
		size = config.DefaultRedisValueSize
	}
	return &KV{
		client: client,
		write:  cfg.Op == "write",
		keys:   keys,
		value:  randomValue(size),
	}
}

// ConnectKV dials Redis and checks the connection.
func ConnectKV(ctx context.Context, cfg config.RedisConfig, concurrency int) (*KV, func() error, error) {
	client, err := dialRedis(ctx, cfg.Addr, concurrency)
	if err != nil {
		return nil, nil, err
	}
	return NewKV(client, cfg), client.Close, nil
}

func dialRedis(ctx context.Context, addr string, concurrency int) (*redis.Client, error) {
	opts := &redis.Options{Addr: addr}
	if concurrency > 0 {
		opts.PoolSize = concurrency
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping %s: %w", addr, err)
	}
	return client, nil
}

// Setup writes the value to every key so reads find a row.
func (k *KV) Setup(ctx context.Context) error {
	for _, key := range k.keys {
		if err := k.client.Set(ctx, key, k.value, 0).Err(); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}
	return nil
}

func (k *KV) Do(ctx context.Context) error {
	key := k.keys[(k.next.Add(1)-1)%uint64(len(k.keys))]
	if k.write {
		tracing.AnnotateRequest(ctx, string(config.TargetRedis), "write")
		return k.client.Set(ctx, key, k.value, 0).Err()
	}
	tracing.AnnotateRequest(ctx, string(config.TargetRedis), "read")
	err := k.client.Get(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", key, ErrMissingKey)
	}
	return err
}

func randomValue(n int) string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rng.Intn(len(alphanumeric))]
	}
	return string(b)
}
