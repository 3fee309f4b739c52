package adbilling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/fraud"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

var now = time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	repos  *repository.Repositories
	clock  *clock.FixedClock
	wallet *wallet.Service
	ledger *Ledger
}

func newFixture(t *testing.T, cfg func(*fraud.Config)) *fixture {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	clk := clock.NewFixedClock(now)
	fc := fraud.DefaultConfig()
	if cfg != nil {
		cfg(&fc)
	}
	detector := fraud.NewDetector(fraud.NewMemoryWindowStore(), func() fraud.Config { return fc })
	ads := adcatalog.NewService(repos, catalog.NewStaticProductCatalog(), clk)
	return &fixture{
		repos:  repos,
		clock:  clk,
		wallet: wallet.NewService(repos),
		ledger: NewLedger(repos, detector, ads, clk),
	}
}

func (f *fixture) fund(t *testing.T, sellerID uint, amount string) {
	t.Helper()
	_, err := f.wallet.Credit(context.Background(), wallet.Entry{SellerID: sellerID, Amount: decimal.RequireFromString(amount)})
	require.NoError(t, err)
}

func (f *fixture) ad(t *testing.T, mutate func(ad *models.Ad)) *models.Ad {
	t.Helper()
	ad := &models.Ad{
		SellerID:       1,
		Type:           models.AdTypeBanner,
		Tier:           models.TierHero,
		StartDate:      now.AddDate(0, 0, -1),
		EndDate:        now.AddDate(0, 0, 30),
		BillingMode:    models.BillingModePerClick,
		Rate:           decimal.RequireFromString("1.00"),
		ApprovalStatus: models.ApprovalApproved,
		Status:         models.AdStatusActive,
	}
	if mutate != nil {
		mutate(ad)
	}
	require.NoError(t, f.repos.Ad.Create(context.Background(), ad))
	return ad
}

func (f *fixture) reload(t *testing.T, id uint) *models.Ad {
	t.Helper()
	ad, err := f.repos.Ad.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ad
}

func (f *fixture) balance(t *testing.T, sellerID uint) decimal.Decimal {
	t.Helper()
	b, err := f.wallet.GetBalance(context.Background(), sellerID)
	require.NoError(t, err)
	return b
}

func TestDuplicateClickIsChargedOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "10")
	ad := f.ad(t, nil)

	first, err := f.ledger.ChargeClick(ctx, ad.ID, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCharged, first.Outcome)
	assert.True(t, first.Charged.Equal(decimal.NewFromInt(1)))

	f.clock.Advance(10 * time.Second)
	second, err := f.ledger.ChargeClick(ctx, ad.ID, "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, second.Blocked)
	assert.Equal(t, models.OutcomeBlockedDuplicate, second.Outcome)
	assert.Equal(t, aderrors.ReasonDuplicate, second.Reason)
	assert.True(t, second.Charged.IsZero())

	assert.True(t, f.balance(t, 1).Equal(decimal.NewFromInt(9)))
	assert.Equal(t, int64(1), f.reload(t, ad.ID).ClickCount)

	rows, err := f.repos.AdEvent.DailyReport(ctx, ad.ID, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Clicks)
	assert.Equal(t, int64(1), rows[0].Charged)
	assert.Equal(t, int64(1), rows[0].Blocked)
}

func TestDailyBudgetRejectsInsteadOfPartialCharge(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "1000")
	ad := f.ad(t, func(ad *models.Ad) {
		ad.BillingMode = models.BillingModeDailyBudget
		ad.Rate = decimal.NewFromInt(30)
		ad.DailyBudget = decimal.NewFromInt(100)
	})

	for i := 0; i < 3; i++ {
		res, err := f.ledger.ChargeClick(ctx, ad.ID, fmt.Sprintf("198.51.100.%d", i))
		require.NoError(t, err)
		require.Equal(t, models.OutcomeCharged, res.Outcome, "click %d", i+1)
		assert.True(t, res.Charged.Equal(decimal.NewFromInt(30)))
	}

	res, err := f.ledger.ChargeClick(ctx, ad.ID, "198.51.100.200")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, aderrors.ReasonDailyBudgetReached, res.Reason)
	assert.True(t, res.Charged.IsZero())

	stored := f.reload(t, ad.ID)
	assert.True(t, stored.CurrentDailySpend.Equal(decimal.NewFromInt(90)))
	assert.True(t, f.balance(t, 1).Equal(decimal.NewFromInt(910)))

	show, err := f.ledger.CanShowAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.False(t, show.CanShow)
	assert.Equal(t, aderrors.ReasonDailyBudgetReached, show.Reason)

	// the cap resets with the calendar day
	f.clock.Advance(24 * time.Hour)
	show, err = f.ledger.CanShowAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.True(t, show.CanShow)

	res, err = f.ledger.ChargeClick(ctx, ad.ID, "198.51.100.201")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCharged, res.Outcome)
	stored = f.reload(t, ad.ID)
	assert.True(t, stored.CurrentDailySpend.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "2026-07-02", stored.SpendDate.Format("2006-01-02"))
}

func TestClickBundleExhaustion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "10")
	ad := f.ad(t, func(ad *models.Ad) {
		ad.TotalClicks = 5
		ad.RemainingClicks = 1
	})

	res, err := f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCharged, res.Outcome)
	assert.Equal(t, []adcatalog.EventKind{adcatalog.EventExhausted}, res.Transitions)

	stored := f.reload(t, ad.ID)
	assert.Equal(t, models.AdStatusInactive, stored.Status)
	assert.Equal(t, int64(0), stored.RemainingClicks)
	assert.Equal(t, int64(1), stored.ClickCount)
	assert.False(t, stored.AutoPaused)

	res, err = f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.2")
	require.NoError(t, err)
	assert.True(t, res.Blocked)
	assert.Equal(t, aderrors.ReasonInactive, res.Reason)
	assert.True(t, f.balance(t, 1).Equal(decimal.NewFromInt(9)))
}

func TestInsufficientFundsAutoPausesAndResume(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "1.50")
	ad := f.ad(t, nil)

	res, err := f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.10")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCharged, res.Outcome)

	res, err = f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.11")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnbilled, res.Outcome)
	assert.Equal(t, aderrors.ReasonInsufficientFunds, res.Reason)
	assert.Equal(t, []adcatalog.EventKind{adcatalog.EventAutoPause}, res.Transitions)

	stored := f.reload(t, ad.ID)
	assert.True(t, stored.AutoPaused)
	assert.Equal(t, models.AdStatusInactive, stored.Status)
	assert.Contains(t, stored.Notes, "auto-paused: insufficient funds")
	assert.True(t, f.balance(t, 1).Equal(decimal.RequireFromString("0.5")))

	resumed, err := f.ledger.ResumeAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.False(t, resumed.Resumed)
	assert.Equal(t, aderrors.ReasonInsufficientFunds, resumed.Reason)
	assert.True(t, f.reload(t, ad.ID).AutoPaused)

	f.fund(t, 1, "0.50")
	resumed, err = f.ledger.ResumeAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.True(t, resumed.Resumed)

	stored = f.reload(t, ad.ID)
	assert.False(t, stored.AutoPaused)
	assert.Equal(t, models.AdStatusActive, stored.Status)

	resumed, err = f.ledger.ResumeAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.False(t, resumed.Resumed)
	assert.Equal(t, aderrors.ReasonNotPaused, resumed.Reason)
}

func TestResumeRespectsWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "10")
	ad := f.ad(t, func(ad *models.Ad) {
		ad.AutoPaused = true
		ad.Status = models.AdStatusInactive
		ad.EndDate = now.AddDate(0, 0, -1)
		ad.StartDate = now.AddDate(0, 0, -5)
	})

	res, err := f.ledger.ResumeAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, aderrors.ReasonWindowClosed, res.Reason)

	res, err = f.ledger.ResumeAd(ctx, 999)
	require.NoError(t, err)
	assert.Equal(t, aderrors.ReasonNotFound, res.Reason)
}

func TestPlanAdsAreCountedNotCharged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ad := f.ad(t, func(ad *models.Ad) {
		ad.BillingMode = models.BillingModePlan
		ad.Rate = decimal.Zero
		ad.IsPaid = true
	})

	view, err := f.ledger.ChargeImpression(ctx, ad.ID, "192.0.2.20")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCounted, view.Outcome)
	click, err := f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.20")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCounted, click.Outcome)
	assert.True(t, click.Charged.IsZero())

	stored := f.reload(t, ad.ID)
	assert.Equal(t, int64(1), stored.ReachCount)
	assert.Equal(t, int64(1), stored.ClickCount)

	show, err := f.ledger.CanShowAd(ctx, ad.ID)
	require.NoError(t, err)
	assert.True(t, show.CanShow)
}

func TestPerImpressionBillsViews(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "1")
	ad := f.ad(t, func(ad *models.Ad) {
		ad.BillingMode = models.BillingModePerImpression
		ad.Rate = decimal.RequireFromString("0.01")
	})

	view, err := f.ledger.ChargeImpression(ctx, ad.ID, "192.0.2.30")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCharged, view.Outcome)

	click, err := f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.30")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeCounted, click.Outcome)

	assert.True(t, f.balance(t, 1).Equal(decimal.RequireFromString("0.99")))
	stored := f.reload(t, ad.ID)
	assert.Equal(t, int64(1), stored.ReachCount)
	assert.Equal(t, int64(1), stored.ClickCount)
}

func TestIneligibleAdsAreNeverCharged(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "10")
	cases := map[aderrors.Reason]func(ad *models.Ad){
		aderrors.ReasonNotApproved:  func(ad *models.Ad) { ad.ApprovalStatus = models.ApprovalPending },
		aderrors.ReasonSuspended:    func(ad *models.Ad) { ad.Status = models.AdStatusSuspended },
		aderrors.ReasonWindowClosed: func(ad *models.Ad) { ad.StartDate = now.AddDate(0, 0, 1) },
		aderrors.ReasonAutoPaused:   func(ad *models.Ad) { ad.AutoPaused = true },
	}
	for reason, mutate := range cases {
		ad := f.ad(t, mutate)
		res, err := f.ledger.ChargeClick(ctx, ad.ID, "192.0.2.40")
		require.NoError(t, err)
		assert.True(t, res.Blocked, string(reason))
		assert.Equal(t, reason, res.Reason)
		assert.True(t, res.Charged.IsZero())

		show, err := f.ledger.CanShowAd(ctx, ad.ID)
		require.NoError(t, err)
		assert.False(t, show.CanShow)
		assert.Equal(t, reason, show.Reason)
	}
	assert.True(t, f.balance(t, 1).Equal(decimal.NewFromInt(10)))

	res, err := f.ledger.ChargeClick(ctx, 4242, "192.0.2.40")
	require.NoError(t, err)
	assert.Equal(t, aderrors.ReasonNotFound, res.Reason)
}

func TestFraudThresholdSuspendsAd(t *testing.T) {
	f := newFixture(t, func(c *fraud.Config) {
		c.RapidLimit = 1
		c.SuspendThreshold = 2
	})
	ctx := context.Background()
	f.fund(t, 1, "10")
	ad := f.ad(t, nil)

	var res ChargeResult
	var err error
	for i := 0; i < 4; i++ {
		res, err = f.ledger.ChargeClick(ctx, ad.ID, "198.18.0.1")
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	assert.Equal(t, models.OutcomeBlockedFraud, res.Outcome)
	assert.Equal(t, []adcatalog.EventKind{adcatalog.EventFraudSuspend}, res.Transitions)

	stored := f.reload(t, ad.ID)
	assert.Equal(t, models.AdStatusSuspended, stored.Status)
	assert.Contains(t, stored.Notes, "auto-suspended: more than 2 abusive events")
	assert.True(t, f.balance(t, 1).Equal(decimal.NewFromInt(9)))
}

func TestConcurrentClicksNeverOverdraw(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.fund(t, 1, "5")
	ad := f.ad(t, func(ad *models.Ad) {
		ad.TotalClicks = 100
		ad.RemainingClicks = 100
	})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		charged int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.ledger.ChargeClick(ctx, ad.ID, fmt.Sprintf("100.64.0.%d", i))
			assert.NoError(t, err)
			if res.Outcome == models.OutcomeCharged {
				mu.Lock()
				charged++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 5, charged)
	assert.True(t, f.balance(t, 1).IsZero())
	stored := f.reload(t, ad.ID)
	assert.Equal(t, int64(95), stored.RemainingClicks)
	assert.Equal(t, int64(5), stored.ClickCount)
	assert.True(t, stored.AutoPaused)
}

func TestAffordability(t *testing.T) {
	ad := &models.Ad{
		StartDate:      now,
		EndDate:        now,
		BillingMode:    models.BillingModePerClick,
		Rate:           decimal.RequireFromString("0.30"),
		ApprovalStatus: models.ApprovalApproved,
		Status:         models.AdStatusActive,
	}
	assert.Equal(t, aderrors.ReasonNone, Affordability(ad, decimal.RequireFromString("0.30"), now))
	assert.Equal(t, aderrors.ReasonInsufficientFunds, Affordability(ad, decimal.RequireFromString("0.2999"), now))
}
