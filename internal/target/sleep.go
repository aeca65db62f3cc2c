package target

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/bimalkant-lauhny/loadrunner/internal/config"
	"github.com/bimalkant-lauhny/loadrunner/internal/tracing"
)

// Sleep is a synthetic operation that waits base plus a uniform random
// jitter in [0, jitter).
type Sleep struct {
	base   time.Duration
	jitter time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSleep(base, jitter time.Duration) *Sleep {
	return &Sleep{
		base:   base,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Sleep) Do(ctx context.Context) error {
	tracing.AnnotateRequest(ctx, string(config.TargetSleep), "")
	d := s.next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sleep) next() time.Duration {
	if s.jitter <= 0 {
		return s.base
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base + time.Duration(s.rng.Int63n(int64(s.jitter)))
}
