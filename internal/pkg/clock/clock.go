package clock

import (
	"sync"
	"time"
)

// Clock is the only source of "now" for the ad engine so date-bound rules
// (start/end windows, daily budget rollover) can be tested deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC so calendar days match the
// UTC dates stored by the database.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Today truncates t to midnight in its own location.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

// DateOf strips the time of day from t.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// FixedClock is a manually advanced clock for tests and replays.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{now: t}
}

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
