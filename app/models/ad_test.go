package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAdInWindowIsInclusive(t *testing.T) {
	ad := &Ad{StartDate: day("2026-03-01"), EndDate: day("2026-03-10")}

	assert.False(t, ad.InWindow(day("2026-02-28")))
	assert.True(t, ad.InWindow(day("2026-03-01")))
	assert.True(t, ad.InWindow(day("2026-03-10").Add(23*time.Hour)))
	assert.False(t, ad.InWindow(day("2026-03-11")))
}

func TestAdChargesOn(t *testing.T) {
	cases := []struct {
		mode  string
		kind  string
		wants bool
	}{
		{BillingModePerClick, EventKindClick, true},
		{BillingModePerClick, EventKindView, false},
		{BillingModePerImpression, EventKindView, true},
		{BillingModePerImpression, EventKindClick, false},
		{BillingModeDailyBudget, EventKindClick, true},
		{BillingModePlan, EventKindClick, false},
		{BillingModePlan, EventKindView, false},
	}
	for _, tc := range cases {
		ad := &Ad{BillingMode: tc.mode}
		assert.Equal(t, tc.wants, ad.ChargesOn(tc.kind), "%s/%s", tc.mode, tc.kind)
	}
	assert.False(t, (&Ad{BillingMode: BillingModePlan}).IsMetered())
	assert.True(t, (&Ad{BillingMode: BillingModeDailyBudget}).IsMetered())
}

func TestAdDailySpendOnIgnoresStaleDay(t *testing.T) {
	yesterday := day("2026-03-01")
	ad := &Ad{CurrentDailySpend: decimal.NewFromInt(40), SpendDate: &yesterday}

	assert.True(t, ad.DailySpendOn(day("2026-03-01")).Equal(decimal.NewFromInt(40)))
	assert.True(t, ad.DailySpendOn(day("2026-03-02")).IsZero())
	assert.True(t, (&Ad{}).DailySpendOn(yesterday).IsZero())
}

func TestAdAppendNoteKeepsHistory(t *testing.T) {
	ad := &Ad{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ad.AppendNote(at, "rejected: blurry image")
	ad.AppendNote(at.Add(time.Hour), "  ")
	ad.AppendNote(at.Add(time.Hour), "approved")

	assert.Equal(t, "[2026-03-01T12:00:00Z] rejected: blurry image\n[2026-03-01T13:00:00Z] approved", ad.Notes)
}

func TestAdCostPlanDailyValue(t *testing.T) {
	plan := &AdCostPlan{Price: decimal.NewFromInt(70), DurationDays: 7}
	assert.True(t, plan.DailyValue().Equal(decimal.NewFromInt(10)))

	plan = &AdCostPlan{Price: decimal.NewFromInt(10), DurationDays: 3}
	assert.Equal(t, "3.3333", plan.DailyValue().String())
}

func TestParsePositions(t *testing.T) {
	got, err := ParsePositions(" 1, 3,6 ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 6}, got)

	_, err = ParsePositions("3,1")
	assert.Error(t, err)
	_, err = ParsePositions("0,2")
	assert.Error(t, err)
	_, err = ParsePositions("")
	assert.Error(t, err)
	_, err = ParsePositions("1,x")
	assert.Error(t, err)
}

func TestAdSettingsDefaultsAreValid(t *testing.T) {
	s := DefaultAdSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, []int{1, 3, 6}, s.GetSponsoredPositions())
	assert.Equal(t, 15*time.Minute, s.GetSweepInterval())
	assert.Equal(t, 5*time.Minute, s.GetFraudCleanupInterval())
	assert.False(t, s.IsEventArchiveEnabled())

	s.apply("fraud_rapid_click_limit", "20")
	s.apply("sponsored_positions", "2,4")
	s.apply("event_archive_enabled", "true")
	s.apply("fraud_session_click_limit", "not-a-number")
	assert.Equal(t, 20, s.FraudRapidClickLimit)
	assert.Equal(t, 5, s.FraudSessionClickLimit)
	assert.Equal(t, []int{2, 4}, s.GetSponsoredPositions())
	assert.True(t, s.IsEventArchiveEnabled())

	s.FraudRapidClickLimit = 0
	assert.Error(t, s.Validate())
}
