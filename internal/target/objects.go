package target

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bimalkant-lauhny/loadrunner/internal/feeder"
)

// Sample files name the object to rewrite and the version id to give it.
// Feature files list one feature id per row.
const (
	sampleObjectColumn  = "object_id"
	sampleVersionColumn = "object_version_id"
	featureIDColumn     = "id"
)

// objectSource picks the object each featurestore write targets: the next
// sample row when samples are loaded, otherwise a freshly numbered object.
type objectSource struct {
	samples feeder.Feeder
	prefix  string
	seq     atomic.Int64
}

func newObjectSource() *objectSource {
	return &objectSource{prefix: "lr-" + uuid.NewString()[:8]}
}

func (s *objectSource) next(ctx context.Context) (string, uuid.UUID, error) {
	if s.samples == nil {
		return fmt.Sprintf("%s-%d", s.prefix, s.seq.Add(1)), uuid.New(), nil
	}
	rec, err := s.samples.Next(ctx)
	if err != nil {
		return "", uuid.Nil, err
	}
	versionID, err := uuid.Parse(rec[sampleVersionColumn])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("sample %s %q: %w", sampleVersionColumn, rec[sampleVersionColumn], err)
	}
	return rec[sampleObjectColumn], versionID, nil
}

// loadSamples opens a sample CSV that cycles when exhausted.
func loadSamples(path string) (feeder.Feeder, error) {
	samples, err := feeder.NewCSVFeeder(path, true, sampleObjectColumn, sampleVersionColumn)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return samples, nil
}

// loadFeatureFile reads every id of a features CSV.
func loadFeatureFile(ctx context.Context, path string) ([]uuid.UUID, error) {
	rows, err := feeder.NewCSVFeeder(path, false, featureIDColumn)
	if err != nil {
		return nil, fmt.Errorf("features: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0, rows.Len())
	for {
		rec, err := rows.Next(ctx)
		if errors.Is(err, feeder.ErrExhausted) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		id, err := uuid.Parse(rec[featureIDColumn])
		if err != nil {
			return nil, fmt.Errorf("features: row %d: %w", len(ids)+1, err)
		}
		ids = append(ids, id)
	}
}

// randomFeatureIDs stands in for a feature table when none is available.
func randomFeatureIDs(n int) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return ids
}
