package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// FailureTracker counts failed operations by error type.
type FailureTracker struct {
	mu     sync.Mutex
	byType map[string]int64
	total  int64
}

// FailureCount is one row of a failure breakdown.
type FailureCount struct {
	Kind  string `json:"kind" yaml:"kind"`
	Count int64  `json:"count" yaml:"count"`
}

func NewFailureTracker() *FailureTracker {
	return &FailureTracker{byType: make(map[string]int64)}
}

// RecordFailure classifies err by its dynamic type.
func (f *FailureTracker) RecordFailure(err error) {
	if err == nil {
		return
	}
	kind := FriendlyErrorName(fmt.Sprintf("%T", err))

	f.mu.Lock()
	defer f.mu.Unlock()
	f.byType[kind]++
	f.total++
}

// Total returns the number of failures recorded.
func (f *FailureTracker) Total() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Reset clears the breakdown.
func (f *FailureTracker) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byType = make(map[string]int64)
	f.total = 0
}

// Breakdown returns failure counts sorted by descending count, then kind.
func (f *FailureTracker) Breakdown() []FailureCount {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.byType) == 0 {
		return nil
	}
	rows := make([]FailureCount, 0, len(f.byType))
	for kind, count := range f.byType {
		rows = append(rows, FailureCount{Kind: kind, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
