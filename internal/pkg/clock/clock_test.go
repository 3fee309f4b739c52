package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClockIsUTC(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.Equal(t, time.UTC, Today(SystemClock{}).Location())
	assert.WithinDuration(t, time.Now(), now, time.Minute)
}

func TestTodayStripsTimeOfDay(t *testing.T) {
	c := NewFixedClock(time.Date(2026, 4, 20, 23, 59, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 4, 20, 0, 0, 0, 0, time.UTC), Today(c))

	c.Advance(2 * time.Minute)
	assert.Equal(t, time.Date(2026, 4, 21, 0, 0, 0, 0, time.UTC), Today(c))
}
