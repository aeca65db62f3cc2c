package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// tickPacer issues one tick's worth of submissions.
type tickPacer interface {
	submitTick(ctx context.Context, n int, submit func() error) error
}

func newTickPacer(opt Options) tickPacer {
	switch opt.Pacing {
	case PacingUniform:
		return &uniformPacer{tick: opt.Tick, limiterFactory: opt.LimiterFactory}
	default:
		return burstPacer{}
	}
}

// burstCheckEvery is how many back-to-back submissions a burst makes
// between cancellation checks.
const burstCheckEvery = 256

// burstPacer submits the whole batch back-to-back.
type burstPacer struct{}

func (burstPacer) submitTick(ctx context.Context, n int, submit func() error) error {
	for i := 0; i < n; i++ {
		if i%burstCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := submit(); err != nil {
			return err
		}
	}
	return nil
}

// uniformPacer spaces the batch evenly across the tick using a rate.Limiter
// with a burst of one, so the last submission lands before the tick ends.
type uniformPacer struct {
	tick           time.Duration
	limiterFactory func(every time.Duration) *rate.Limiter
}

func (u *uniformPacer) submitTick(ctx context.Context, n int, submit func() error) error {
	if n <= 0 {
		return nil
	}
	limiter := u.limiterFactory(u.tick / time.Duration(n))
	for i := 0; i < n; i++ {
		if err := limiter.Wait(ctx); err != nil {
			// Wait fails early when the next slot lies past the deadline.
			// The run still lasts until the deadline itself.
			if _, ok := ctx.Deadline(); ok {
				<-ctx.Done()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if err := submit(); err != nil {
			return err
		}
	}
	return nil
}

// sleepCtx pauses for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
