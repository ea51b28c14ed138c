package roster

import (
	"context"
	"math/rand"
	"time"
)

// Stagger spaces out bot launches so they do not all connect to the server
// in the same instant. Each bot gets a fixed interval plus a per-slot jitter
// that is stable for a given seed.
type Stagger struct {
	interval  time.Duration
	maxJitter time.Duration
	seed      int64
}

// NewStagger creates a stagger seeded from the current time.
func NewStagger(interval, maxJitter time.Duration) *Stagger {
	return NewStaggerWithSeed(interval, maxJitter, time.Now().UnixNano())
}

// NewStaggerWithSeed creates a stagger with a specific seed for reproducibility.
func NewStaggerWithSeed(interval, maxJitter time.Duration, seed int64) *Stagger {
	return &Stagger{interval: interval, maxJitter: maxJitter, seed: seed}
}

// Delay returns the wait before launching the bot in slot. Slot 0 never waits.
func (s *Stagger) Delay(slot int) time.Duration {
	if s == nil || slot <= 0 {
		return 0
	}
	d := s.interval
	if d < 0 {
		d = 0
	}
	return d + s.jitter(slot)
}

// jitter returns a value in [0, maxJitter) that depends only on seed and slot.
func (s *Stagger) jitter(slot int) time.Duration {
	if s.maxJitter <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(int64(slot) ^ s.seed))
	return time.Duration(rng.Int63n(int64(s.maxJitter)))
}

// Wait blocks for Delay(slot). It returns the context error if cancelled first.
func (s *Stagger) Wait(ctx context.Context, slot int) error {
	d := s.Delay(slot)
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Estimated returns the expected time to launch n bots.
func (s *Stagger) Estimated(n int) time.Duration {
	if s == nil || n <= 1 {
		return 0
	}
	return time.Duration(n-1) * (s.interval + s.maxJitter/2)
}
