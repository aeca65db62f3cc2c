// Package feeder supplies per-request rows from a dataset.
package feeder

import (
	"context"
	"errors"
)

// Record is a single row keyed by column name.
type Record map[string]string

// Feeder hands out records in a deterministic order. Implementations must be
// safe for concurrent use.
type Feeder interface {
	Next(ctx context.Context) (Record, error)
	Close() error
	Len() int
}

// ErrExhausted is returned when every record was consumed and rewind is off.
var ErrExhausted = errors.New("feeder exhausted: no more records available")
