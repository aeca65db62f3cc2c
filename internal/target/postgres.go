package target

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/feeder"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

const (
	deleteScoresSQL  = `DELETE FROM object_features_scores WHERE object_id = $1`
	deleteVersionSQL = `DELETE FROM object_versions WHERE id = $1`
	insertVersionSQL = `INSERT INTO object_versions
		(id, object_id, apollo_timestamp_str, apollo_timestamp, storage_location, object_version_type, updated_at, created_at, tags, object_version_status)
		VALUES ($1, $2, $3, $4, $5, $6::objectversiontypeenum, $7, $8, $9, $10)`
	insertScoreSQL = `INSERT INTO object_features_scores
		(id, object_id, feature_id, feature_slug_name, scoring_date, value, default_score, split_value, description, result_type, created_at, updated_at, object_version_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	selectFeaturesSQL = `SELECT DISTINCT id FROM features LIMIT $1`
)

const (
	sampleTimestamp       = "1584072474291"
	sampleStorageLocation = "apollo/v1/archive/json/d99/orderId=CLI-8YRXMW71/d99-1584072467149.json"
	sampleFeatureSlug     = "days_from_oldest_credit_card_payment_date"
	sampleScore           = "1.3333333333333333"
)

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Featurestore rewrites one object's version and feature scores per
// operation, inside a single transaction.
type Featurestore struct {
	db         txBeginner
	featureIDs []uuid.UUID
	objects    *objectSource
	now        func() time.Time
}

// NewFeaturestore writes one score per feature id through db.
func NewFeaturestore(db txBeginner, featureIDs []uuid.UUID) *Featurestore {
	return &Featurestore{
		db:         db,
		featureIDs: featureIDs,
		objects:    newObjectSource(),
		now:        time.Now,
	}
}

// WithSamples makes each operation rewrite the next object listed by
// samples instead of a generated one.
func (f *Featurestore) WithSamples(samples feeder.Feeder) *Featurestore {
	f.objects.samples = samples
	return f
}

// ConnectFeaturestore opens a pgx pool and loads up to cfg.Features feature
// ids from the features table. Missing ids are filled with random ones.
// cfg.Sample, when set, is a CSV of object_id,object_version_id rows that
// operations cycle through.
func ConnectFeaturestore(ctx context.Context, cfg config.PostgresConfig, concurrency int) (*Featurestore, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("parse dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns == 0 {
		maxConns = concurrency
	}
	if maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}

	ids, err := loadFeatureIDs(ctx, pool, cfg.Features)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	fs := NewFeaturestore(pool, ids)
	if cfg.Sample != "" {
		samples, err := loadSamples(cfg.Sample)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		fs.WithSamples(samples)
	}
	return fs, pool.Close, nil
}

func loadFeatureIDs(ctx context.Context, pool *pgxpool.Pool, want int) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, selectFeaturesSQL, want)
	if err != nil {
		return nil, fmt.Errorf("load feature ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (uuid.UUID, error) {
		var raw string
		if err := row.Scan(&raw); err != nil {
			return uuid.Nil, err
		}
		return uuid.Parse(raw)
	})
	if err != nil {
		return nil, fmt.Errorf("load feature ids: %w", err)
	}
	return append(ids, randomFeatureIDs(want-len(ids))...), nil
}

func (f *Featurestore) Do(ctx context.Context) error {
	tracing.AnnotateRequest(ctx, string(config.TargetPostgres), "featurestore")
	objectID, versionID, err := f.objects.next(ctx)
	if err != nil {
		return err
	}
	batch := f.writeBatch(objectID, versionID)

	return pgx.BeginFunc(ctx, f.db, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("statement %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

// writeBatch queues the statements for one object: clear its scores and
// version, insert a fresh version, then one score per feature.
func (f *Featurestore) writeBatch(objectID string, versionID uuid.UUID) *pgx.Batch {
	now := f.now()
	batch := &pgx.Batch{}
	batch.Queue(deleteScoresSQL, objectID)
	batch.Queue(deleteVersionSQL, versionID)
	batch.Queue(insertVersionSQL,
		versionID, objectID, sampleTimestamp, now, sampleStorageLocation,
		"BEFORE_APPROVAL", now, now, nil, "Pending",
	)
	for _, featureID := range f.featureIDs {
		batch.Queue(insertScoreSQL,
			uuid.New(), objectID, featureID, sampleFeatureSlug, now, sampleScore,
			0, nil, nil, "NUMERIC_LIMIT", now, now, versionID,
		)
	}
	return batch
}
