package testutil

import (
	"context"
	"sync"
	"time"

	"authcore/pkg/requestcontext"
)

// Clock is a manually advanced time source for service tests. Ctx returns a
// context carrying the current instant through requestcontext.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Ctx returns a background context pinned to the current instant.
func (c *Clock) Ctx() context.Context {
	return requestcontext.WithTime(context.Background(), c.Now())
}
