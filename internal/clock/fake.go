package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock whose After fires immediately and advances the
// fake time by the requested duration. Every wait is recorded so tests
// can assert retry schedules.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.waits = append(c.waits, d)
	c.current = c.current.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.current
	return ch
}

// Advance moves the fake time forward without recording a wait.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Waits returns a copy of every duration passed to After.
func (c *FakeClock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.waits))
	copy(out, c.waits)
	return out
}

// TotalWait sums every recorded wait.
func (c *FakeClock) TotalWait() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.waits {
		total += d
	}
	return total
}
