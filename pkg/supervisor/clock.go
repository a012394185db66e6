package supervisor

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts wall-clock time so the state machine's deadlines can be
// exercised in tests without sleeping.
type Clock interface {
	Now() time.Time

	// Sleep waits for d or until the context is done, returning ctx.Err() in
	// the latter case. Every wait the supervisor performs goes through Sleep,
	// which is what makes the stop signal observable between poll cycles.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// NewClock returns the wall-clock backed Clock.
func NewClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
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

// FakeClock is a deterministic Clock for tests. Sleep advances the fake time
// immediately, so a supervision runs to completion synchronously while every
// deadline comparison still sees consistent timestamps.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time

	// OnAdvance, when set, runs after every advance with the new time. Tests
	// use it to cancel contexts or flip fake lifecycle state at a given
	// instant.
	OnAdvance func(now time.Time)
}

// NewFakeClock creates a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake time by d.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return ctx.Err()
}

// Advance moves the fake time forward by d and fires OnAdvance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	now := c.now
	hook := c.OnAdvance
	c.mu.Unlock()

	if hook != nil {
		hook(now)
	}
}

// Set jumps the fake time to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}
