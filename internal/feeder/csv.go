package feeder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
)

// CSVFeeder serves the rows of a CSV file in file order. The first row is the
// header naming the fields.
type CSVFeeder struct {
	mu      sync.Mutex
	records []Record
	index   int
	rewind  bool
}

// NewCSVFeeder loads path. With rewind set the feeder wraps around instead of
// returning ErrExhausted. Every column in required must be present in the header.
func NewCSVFeeder(path string, rewind bool, required ...string) (*CSVFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have a header row and at least one data row")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("CSV header is missing column %q", col)
		}
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		rec := make(Record, len(header))
		for j, field := range header {
			rec[field] = strings.TrimSpace(row[j])
		}
		records = append(records, rec)
	}

	return &CSVFeeder{records: records, rewind: rewind}, nil
}

// Next returns the next record.
func (f *CSVFeeder) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index >= len(f.records) {
		if !f.rewind {
			return nil, ErrExhausted
		}
		f.index = 0
	}
	rec := f.records[f.index]
	f.index++
	return rec, nil
}

// Close is a no-op; the file is read fully at construction.
func (f *CSVFeeder) Close() error {
	return nil
}

func (f *CSVFeeder) Len() int {
	return len(f.records)
}
