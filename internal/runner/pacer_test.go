package runner

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBurstPacerSubmitsExactCount(t *testing.T) {
	var calls int
	err := burstPacer{}.submitTick(context.Background(), 7, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 7 {
		t.Fatalf("expected 7 submissions, got %d", calls)
	}
}

func TestBurstPacerStopsOnSubmitError(t *testing.T) {
	boom := errors.New("rejected")
	var calls int
	err := burstPacer{}.submitTick(context.Background(), 5, func() error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected submit error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected pacing to stop after failure, got %d calls", calls)
	}
}

func TestUniformPacerSpreadsAcrossTick(t *testing.T) {
	opt := Options{Config: Config{Pacing: PacingUniform, Tick: 100 * time.Millisecond}}
	opt.normalize()
	p := newTickPacer(opt)

	var stamps []time.Time
	start := time.Now()
	err := p.submitTick(context.Background(), 5, func() error {
		stamps = append(stamps, time.Now())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stamps) != 5 {
		t.Fatalf("expected 5 submissions, got %d", len(stamps))
	}
	elapsed := stamps[len(stamps)-1].Sub(start)
	// 4 gaps of 20ms each
	if elapsed < 60*time.Millisecond || elapsed > 150*time.Millisecond {
		t.Fatalf("uniform pacing off: last submission after %s", elapsed)
	}
}

func TestUniformPacerHonoursCancellation(t *testing.T) {
	opt := Options{Config: Config{Pacing: PacingUniform, Tick: time.Hour}}
	opt.normalize()
	p := newTickPacer(opt)

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		start := time.Now()
		var calls int
		err := p.submitTick(ctx, 2, func() error {
			calls++
			return nil
		})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected context.DeadlineExceeded, got %v", err)
		}
		if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
			t.Fatalf("returned %s before the deadline", elapsed)
		}
		if calls != 1 {
			t.Fatalf("expected only the first submission before the deadline, got %d", calls)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)
		var calls int
		err := p.submitTick(ctx, 2, func() error {
			calls++
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected only the first submission before cancellation, got %d", calls)
		}
	})
}

func TestBurstPacerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := burstPacer{}.submitTick(ctx, 10*burstCheckEvery, func() error {
		calls++
		if calls == 10 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != burstCheckEvery {
		t.Fatalf("expected the burst to stop at the next check, got %d calls", calls)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Fatalf("zero sleep should not fail: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
