package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestProgressLine(t *testing.T) {
	stats := metrics.NewRunStats()
	rec := metrics.NewRecorder(0, 0)
	for i := 0; i < 10; i++ {
		stats.IncSubmitted()
		stats.IncStarted()
	}
	for i := 0; i < 7; i++ {
		stats.IncCompleted()
		rec.Record(2 * time.Millisecond)
	}
	stats.IncFailed()

	line := NewProgressReporter(stats, rec, time.Second, nil).line(2 * time.Second)
	for _, want := range []string{"Submitted: 10", "Recorded: 7", "Failed: 1", "In flight: 2", "Rate: 5.0/s", "P99: 2"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestProgressLineWithoutRecorder(t *testing.T) {
	line := NewProgressReporter(metrics.NewRunStats(), nil, time.Second, nil).line(0)
	if strings.Contains(line, "P99") {
		t.Errorf("unexpected percentile in %q", line)
	}
}

func TestProgressReporterWrites(t *testing.T) {
	stats := metrics.NewRunStats()
	stats.IncSubmitted()

	var buf syncBuffer
	reporter := NewProgressReporter(stats, nil, 10*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()
	time.Sleep(50 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Submitted: 1") {
		t.Errorf("expected progress output, got %q", buf.String())
	}
}
