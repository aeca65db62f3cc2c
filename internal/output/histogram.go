package output

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/bimalkant-lauhny/loadrunner/internal/metrics"
)

// ErrOutputLocked is returned when another process holds the output file lock.
var ErrOutputLocked = errors.New("histogram output is locked by another process")

const lockWait = 2 * time.Second

// WriteHistogramFile exports rec to path as an HDR percentile distribution
// with values divided by valueScale. A sibling path+".lock" file guards
// against concurrent runs writing the same output.
func WriteHistogramFile(path string, rec *metrics.Recorder, valueScale float64) error {
	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockWait)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("%s: %w", path, ErrOutputLocked)
	}
	defer lock.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create histogram file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := rec.Export(w, valueScale); err != nil {
		f.Close()
		return fmt.Errorf("export histogram: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write histogram file: %w", err)
	}
	return f.Close()
}
