package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/app/models"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func fixedConfig(mutate func(*Config)) func() Config {
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	return func() Config { return cfg }
}

func TestDuplicateWithinFiveMinutes(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryWindowStore(), nil)

	v, err := d.Evaluate(ctx, models.EventKindClick, 1, "10.0.0.1", t0)
	require.NoError(t, err)
	assert.False(t, v.Blocked())
	assert.Zero(t, v.FraudScore)

	v, err = d.Evaluate(ctx, models.EventKindClick, 1, "10.0.0.1", t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.True(t, v.IsDuplicate)
	assert.False(t, v.IsFraud)
	assert.True(t, v.Blocked())
	assert.Equal(t, []string{ReasonDuplicate}, v.Reasons)

	// other ip, other ad and other kind are independent
	for _, tc := range []struct {
		kind string
		ad   uint
		ip   string
	}{
		{models.EventKindClick, 1, "10.0.0.2"},
		{models.EventKindClick, 2, "10.0.0.1"},
		{models.EventKindView, 1, "10.0.0.1"},
	} {
		v, err = d.Evaluate(ctx, tc.kind, tc.ad, tc.ip, t0.Add(20*time.Second))
		require.NoError(t, err)
		assert.False(t, v.IsDuplicate, "%+v", tc)
	}

	v, err = d.Evaluate(ctx, models.EventKindClick, 1, "10.0.0.1", t0.Add(5*time.Minute+11*time.Second))
	require.NoError(t, err)
	assert.False(t, v.IsDuplicate)
}

func TestRapidClicks(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryWindowStore(), fixedConfig(func(c *Config) {
		c.SessionLimit = 1000
		c.DuplicateWindow = time.Millisecond
	}))

	var v Verdict
	var err error
	for i := 0; i < 10; i++ {
		v, err = d.Evaluate(ctx, models.EventKindClick, 1, "1.1.1.1", t0.Add(time.Duration(i)*5*time.Second))
		require.NoError(t, err)
		assert.False(t, v.IsFraud, "click %d", i+1)
	}
	v, err = d.Evaluate(ctx, models.EventKindClick, 1, "1.1.1.1", t0.Add(55*time.Second))
	require.NoError(t, err)
	assert.True(t, v.IsFraud)
	assert.GreaterOrEqual(t, v.FraudScore, HighScore)
	assert.Contains(t, v.Reasons, ReasonRapidClicks)
}

func TestSessionBurstBelowRapidThreshold(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryWindowStore(), nil)
	step := 5*time.Minute + 30*time.Second

	var v Verdict
	var err error
	for i := 0; i < 5; i++ {
		v, err = d.Evaluate(ctx, models.EventKindClick, 1, "2.2.2.2", t0.Add(time.Duration(i)*step))
		require.NoError(t, err)
		assert.False(t, v.Blocked(), "click %d", i+1)
	}
	v, err = d.Evaluate(ctx, models.EventKindClick, 1, "2.2.2.2", t0.Add(5*step))
	require.NoError(t, err)
	assert.False(t, v.IsDuplicate)
	assert.True(t, v.IsFraud)
	assert.Equal(t, SessionScore, v.FraudScore)
	assert.Equal(t, []string{ReasonSessionBurst}, v.Reasons)
}

func TestViewsSkipSessionBurstAndSuspension(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryWindowStore(), fixedConfig(func(c *Config) {
		c.SuspendThreshold = 1
	}))
	step := 5*time.Minute + 30*time.Second

	for i := 0; i < 5; i++ {
		v, err := d.Evaluate(ctx, models.EventKindView, 1, "2.2.2.2", t0.Add(time.Duration(i)*step))
		require.NoError(t, err)
		assert.False(t, v.Blocked(), "view %d", i+1)
	}

	// rapid views are still blocked but never suspend the ad
	for i := 0; i < 12; i++ {
		v, err := d.Evaluate(ctx, models.EventKindView, 1, "5.5.5.5", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.False(t, v.ShouldSuspend, "view %d", i+1)
		if i >= 10 {
			assert.True(t, v.IsFraud)
			assert.Contains(t, v.Reasons, ReasonRapidClicks)
		}
	}
}

func TestScoreIsCapped(t *testing.T) {
	ctx := context.Background()
	d := NewDetector(NewMemoryWindowStore(), fixedConfig(func(c *Config) {
		c.RapidLimit = 1
		c.SessionLimit = 1
	}))
	_, err := d.Evaluate(ctx, models.EventKindClick, 1, "3.3.3.3", t0)
	require.NoError(t, err)
	v, err := d.Evaluate(ctx, models.EventKindClick, 1, "3.3.3.3", t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, MaxScore, v.FraudScore)
	assert.ElementsMatch(t, []string{ReasonDuplicate, ReasonRapidClicks, ReasonSessionBurst}, v.Reasons)
}

func TestAutoSuspendThreshold(t *testing.T) {
	ctx := context.Background()
	cfg := fixedConfig(func(c *Config) {
		c.RapidLimit = 1
		c.SuspendThreshold = 3
	})
	d := NewDetector(NewMemoryWindowStore(), cfg)

	var v Verdict
	var err error
	for i := 0; i < 4; i++ {
		v, err = d.Evaluate(ctx, models.EventKindClick, 9, "4.4.4.4", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.False(t, v.ShouldSuspend, "click %d", i+1)
	}
	v, err = d.Evaluate(ctx, models.EventKindClick, 9, "4.4.4.4", t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.True(t, v.ShouldSuspend)
	assert.Contains(t, v.Reasons, ReasonAbuseThreshold)
	assert.Contains(t, SuspendNote(v, d.Config()), "more than 3 abusive events")
}

func TestCleanupPrunesIdleWindows(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryWindowStore()
	d := NewDetector(store, nil)

	_, err := d.Evaluate(ctx, models.EventKindClick, 1, "5.5.5.5", t0)
	require.NoError(t, err)
	_, err = d.Evaluate(ctx, models.EventKindClick, 2, "5.5.5.5", t0.Add(29*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	n, err := d.Cleanup(ctx, t0.Add(31*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestConfigFromSettings(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.DuplicateWindow)
	assert.Equal(t, time.Minute, cfg.RapidWindow)
	assert.Equal(t, 10, cfg.RapidLimit)
	assert.Equal(t, 30*time.Minute, cfg.SessionWindow)
	assert.Equal(t, 5, cfg.SessionLimit)
	assert.Equal(t, 50, cfg.SuspendThreshold)
	assert.Equal(t, 24*time.Hour, cfg.SuspendWindow)
	assert.Equal(t, 30*time.Minute, cfg.sourceTTL())
}
