// Package backoff computes retry delays for reauthentication and
// reconnect loops.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/presencectl/internal/clock"
)

// Config defines retry backoff behavior.
//
// Step > 0 selects linear growth (InitialDelay + Step*(attempt-1));
// otherwise the delay grows by Multiplier per attempt. MaxDelay caps both.
type Config struct {
	InitialDelay time.Duration
	Step         time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Linear returns a jitter-free linear policy.
func Linear(initial, step, max time.Duration) Config {
	return Config{InitialDelay: initial, Step: step, MaxDelay: max}
}

// Fixed returns a policy that always waits d.
func Fixed(d time.Duration) Config {
	return Config{InitialDelay: d, Multiplier: 1.0, MaxDelay: d}
}

// Next returns the retry delay for attempt N (1-based).
func Next(cfg Config, attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var delay float64
	switch {
	case cfg.Step > 0:
		delay = float64(cfg.InitialDelay) + float64(cfg.Step)*float64(attempt-1)
	case attempt == 1:
		delay = float64(cfg.InitialDelay)
	case cfg.InitialDelay <= 0:
		return 0
	default:
		mult := cfg.Multiplier
		if mult < 1.0 {
			mult = 1.0
		}
		delay = float64(cfg.InitialDelay) * math.Pow(mult, float64(attempt-1))
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if delay < 0 {
		delay = 0
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Wait blocks for d on clk, returning early with ctx.Err() on cancellation.
func Wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if clk == nil {
		clk = clock.Real()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}
