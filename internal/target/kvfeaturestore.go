package target

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/feeder"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

type kvTxClient interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// KVFeaturestore keeps the featurestore layout in Redis. Each object has a
// version hash, one hash per feature score and a set indexing its scores.
// An operation replaces all three inside one MULTI/EXEC.
type KVFeaturestore struct {
	client     kvTxClient
	prefix     string
	featureIDs []uuid.UUID
	objects    *objectSource
	now        func() time.Time
}

func NewKVFeaturestore(client kvTxClient, prefix string, featureIDs []uuid.UUID) *KVFeaturestore {
	if prefix == "" {
		prefix = "loadrunner"
	}
	return &KVFeaturestore{
		client:     client,
		prefix:     prefix,
		featureIDs: featureIDs,
		objects:    newObjectSource(),
		now:        time.Now,
	}
}

// WithSamples makes each operation rewrite the next object listed by samples.
func (f *KVFeaturestore) WithSamples(samples feeder.Feeder) *KVFeaturestore {
	f.objects.samples = samples
	return f
}

// ConnectKVFeaturestore dials Redis and resolves the feature ids from
// cfg.FeaturesFile, or generates cfg.Features random ones.
func ConnectKVFeaturestore(ctx context.Context, cfg config.RedisConfig, concurrency int) (*KVFeaturestore, func() error, error) {
	var ids []uuid.UUID
	if cfg.FeaturesFile != "" {
		var err error
		if ids, err = loadFeatureFile(ctx, cfg.FeaturesFile); err != nil {
			return nil, nil, err
		}
	} else {
		ids = randomFeatureIDs(cfg.Features)
	}
	var samples feeder.Feeder
	if cfg.Sample != "" {
		var err error
		if samples, err = loadSamples(cfg.Sample); err != nil {
			return nil, nil, err
		}
	}

	client, err := dialRedis(ctx, cfg.Addr, concurrency)
	if err != nil {
		if samples != nil {
			_ = samples.Close()
		}
		return nil, nil, err
	}
	fs := NewKVFeaturestore(client, cfg.KeyPrefix, ids)
	if samples != nil {
		fs.WithSamples(samples)
	}
	return fs, client.Close, nil
}

func (f *KVFeaturestore) Do(ctx context.Context) error {
	tracing.AnnotateRequest(ctx, string(config.TargetRedis), "featurestore")
	objectID, versionID, err := f.objects.next(ctx)
	if err != nil {
		return err
	}
	stale, err := f.client.SMembers(ctx, f.objectKey(objectID)).Result()
	if err != nil {
		return fmt.Errorf("scores of %s: %w", objectID, err)
	}
	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		f.queueRewrite(ctx, pipe, objectID, versionID, stale)
		return nil
	})
	return err
}

// queueRewrite queues the commands for one object: replace its version
// hash, drop the score hashes listed in stale, then write and index one
// score per feature.
func (f *KVFeaturestore) queueRewrite(ctx context.Context, pipe redis.Pipeliner, objectID string, versionID uuid.UUID, stale []string) []redis.Cmder {
	now := f.now()
	stamp := now.UTC().Format(time.RFC3339Nano)
	version := versionID.String()
	setKey := f.objectKey(objectID)

	cmds := make([]redis.Cmder, 0, len(f.featureIDs)+4)
	cmds = append(cmds,
		pipe.Del(ctx, f.versionKey(version)),
		pipe.HSet(ctx, f.versionKey(version), map[string]interface{}{
			"object_id":             objectID,
			"apollo_timestamp_str":  sampleTimestamp,
			"apollo_timestamp":      strconv.FormatInt(now.UnixMilli(), 10),
			"storage_location":      sampleStorageLocation,
			"object_version_type":   "BEFORE_APPROVAL",
			"object_version_status": "Pending",
			"created_at":            stamp,
			"updated_at":            stamp,
		}),
	)

	dead := make([]string, 0, len(stale)+1)
	for _, id := range stale {
		dead = append(dead, f.scoreKey(id))
	}
	cmds = append(cmds, pipe.Del(ctx, append(dead, setKey)...))

	members := make([]interface{}, 0, len(f.featureIDs))
	for _, featureID := range f.featureIDs {
		scoreID := uuid.NewString()
		cmds = append(cmds, pipe.HSet(ctx, f.scoreKey(scoreID), map[string]interface{}{
			"object_id":         objectID,
			"object_version_id": version,
			"feature_id":        featureID.String(),
			"feature_slug_name": sampleFeatureSlug,
			"scoring_date":      stamp,
			"value":             sampleScore,
			"default_score":     "0",
			"result_type":       "NUMERIC_LIMIT",
		}))
		members = append(members, scoreID)
	}
	if len(members) > 0 {
		cmds = append(cmds, pipe.SAdd(ctx, setKey, members...))
	}
	return cmds
}

func (f *KVFeaturestore) versionKey(versionID string) string {
	return f.prefix + ":ov:" + versionID
}

func (f *KVFeaturestore) scoreKey(scoreID string) string {
	return f.prefix + ":ofs:" + scoreID
}

func (f *KVFeaturestore) objectKey(objectID string) string {
	return f.prefix + ":ofs:object:" + objectID
}
