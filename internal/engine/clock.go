package engine

import (
	"context"
	"sync"
	"time"
)

// Clock is the session's time source.
//
// NowMicros is microseconds since session start on a monotonic base;
// every journal timestamp and predicate deadline uses this scale.
// Sleep must honor ctx cancellation.
type Clock interface {
	NowMicros() int64
	Sleep(ctx context.Context, d time.Duration) error
}

// WallClock measures real time from a fixed monotonic base.
type WallClock struct {
	base time.Time
}

// NewWallClock starts a wall clock at zero.
func NewWallClock() *WallClock {
	return &WallClock{base: time.Now()}
}

// NowMicros returns microseconds elapsed since the clock was created.
func (c *WallClock) NowMicros() int64 {
	return time.Since(c.base).Microseconds()
}

// Sleep blocks for d or until ctx is cancelled.
func (c *WallClock) Sleep(ctx context.Context, d time.Duration) error {
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

// SimClock is a virtual clock for tests and dry runs. Sleep advances
// it instantly, so a forty-minute session executes in milliseconds
// while every journaled timestamp lands exactly where the schedule
// says it should.
//
// Thread-safety: all methods are safe for concurrent use. The monitor
// goroutines stamp with NowMicros while the session sleeps.
type SimClock struct {
	mu sync.Mutex
	us int64
}

// NewSimClock starts a simulated clock at zero.
func NewSimClock() *SimClock { return &SimClock{} }

// NowMicros returns the current simulated time.
func (c *SimClock) NowMicros() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.us
}

// Sleep advances the clock by d without blocking.
func (c *SimClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	c.mu.Lock()
	c.us += d.Microseconds()
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward without a sleeper. Tests use it to
// simulate time passing between session phases.
func (c *SimClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.us += d.Microseconds()
	c.mu.Unlock()
}
