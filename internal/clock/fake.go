package clock

import "time"

// FakeClock is a Clock whose time only moves when a test advances it, so
// freshness checks are fully deterministic.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, or back with a negative d.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
