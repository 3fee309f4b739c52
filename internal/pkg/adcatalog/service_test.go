package adcatalog

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

type fixture struct {
	repos   *repository.Repositories
	clock   *clock.FixedClock
	wallet  *wallet.Service
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	clk := clock.NewFixedClock(now)
	products := catalog.NewStaticProductCatalog(
		models.Product{ID: 100, SellerID: 1, Status: models.ProductStatusActive, IsApproved: true},
		models.Product{ID: 101, SellerID: 2, Status: models.ProductStatusActive, IsApproved: true},
		models.Product{ID: 102, SellerID: 1, Status: models.ProductStatusActive, IsApproved: false},
	)
	return &fixture{
		repos:   repos,
		clock:   clk,
		wallet:  wallet.NewService(repos),
		service: NewService(repos, products, clk),
	}
}

func (f *fixture) fund(t *testing.T, sellerID uint, amount string) {
	t.Helper()
	_, err := f.wallet.Credit(context.Background(), wallet.Entry{SellerID: sellerID, Amount: decimal.RequireFromString(amount)})
	require.NoError(t, err)
}

func (f *fixture) plan(t *testing.T, capture bool) *models.AdCostPlan {
	t.Helper()
	p := &models.AdCostPlan{
		Name:              "Hero week",
		AdType:            models.AdTypeBanner,
		Tier:              models.TierHero,
		DurationDays:      7,
		Price:             decimal.NewFromInt(70),
		CaptureAtCreation: capture,
		IsActive:          true,
	}
	require.NoError(t, f.service.CreatePlan(context.Background(), p))
	return p
}

func bannerSpec() AdSpec {
	return AdSpec{
		SellerID:    1,
		Type:        models.AdTypeBanner,
		Tier:        models.TierHero,
		ImageURL:    "https://cdn.example.com/b.png",
		LinkURL:     "https://shop.example.com/sale",
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, 10),
		BillingMode: models.BillingModePerClick,
		Rate:        decimal.RequireFromString("0.50"),
	}
}

func TestCreateAdValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(s *AdSpec)
		field  string
	}{
		{"unknown type", func(s *AdSpec) { s.Type = "popup" }, "type"},
		{"banner without tier", func(s *AdSpec) { s.Tier = 0 }, "tier"},
		{"banner without image", func(s *AdSpec) { s.ImageURL = "" }, "image_url"},
		{"bad link", func(s *AdSpec) { s.LinkURL = "not a url" }, "linkurl"},
		{"past start", func(s *AdSpec) { s.StartDate = now.AddDate(0, 0, -1) }, "start_date"},
		{"end before start", func(s *AdSpec) { s.EndDate = now.AddDate(0, 0, -1) }, "end_date"},
		{"zero rate", func(s *AdSpec) { s.Rate = decimal.Zero }, "rate"},
		{"no billing", func(s *AdSpec) { s.BillingMode = "" }, "billing_mode"},
		{"plan and mode", func(s *AdSpec) { id := uint(1); s.PlanID = &id }, "billing_mode"},
		{"budget missing", func(s *AdSpec) { s.BillingMode = models.BillingModeDailyBudget }, "daily_budget"},
		{"rate above budget", func(s *AdSpec) {
			s.BillingMode = models.BillingModeDailyBudget
			s.DailyBudget = decimal.RequireFromString("0.25")
		}, "rate"},
		{"bundle on impressions", func(s *AdSpec) {
			s.BillingMode = models.BillingModePerImpression
			s.TotalClicks = 10
		}, "total_clicks"},
		{"foreign product", func(s *AdSpec) { id := uint(101); s.ProductID = &id }, "product_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := bannerSpec()
			tc.mutate(&spec)
			_, err := f.service.CreateAd(ctx, spec)
			require.Error(t, err)
			var ve *aderrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tc.field)
		})
	}
}

func TestCreateSponsoredAdChecksProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	spec := AdSpec{
		SellerID:    1,
		Type:        models.AdTypeSponsoredProduct,
		StartDate:   now,
		EndDate:     now.AddDate(0, 0, 3),
		BillingMode: models.BillingModePerClick,
		Rate:        decimal.RequireFromString("0.10"),
	}

	_, err := f.service.CreateAd(ctx, spec)
	assert.True(t, aderrors.IsValidation(err))

	unapproved := uint(102)
	spec.ProductID = &unapproved
	_, err = f.service.CreateAd(ctx, spec)
	assert.True(t, aderrors.IsValidation(err))

	ok := uint(100)
	spec.ProductID = &ok
	id, err := f.service.CreateAd(ctx, spec)
	require.NoError(t, err)

	ad, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, ad.ApprovalStatus)
	assert.Equal(t, models.AdStatusInactive, ad.Status)
	assert.True(t, ad.BidAmount.Equal(ad.Rate))
}

func TestCreatePlanAdCapturesPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.plan(t, true)

	spec := bannerSpec()
	spec.BillingMode, spec.Rate, spec.EndDate = "", decimal.Zero, time.Time{}
	spec.PlanID = &p.ID

	_, err := f.service.CreateAd(ctx, spec)
	require.ErrorIs(t, err, aderrors.ErrInsufficientFunds)
	ads, err := f.service.ListBySeller(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, ads)

	f.fund(t, 1, "100")
	id, err := f.service.CreateAd(ctx, spec)
	require.NoError(t, err)

	ad, err := f.service.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ad.IsPaid)
	assert.Equal(t, models.BillingModePlan, ad.BillingMode)
	assert.Equal(t, "2026-06-21", ad.EndDate.Format("2006-01-02"))
	assert.True(t, ad.BidAmount.Equal(decimal.NewFromInt(10)))

	bal, err := f.wallet.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(30)))
}

func TestActivateDeferredPlanAndReasons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.plan(t, false)

	spec := bannerSpec()
	spec.BillingMode, spec.Rate, spec.EndDate = "", decimal.Zero, time.Time{}
	spec.PlanID = &p.ID
	id, err := f.service.CreateAd(ctx, spec)
	require.NoError(t, err)

	_, err = f.service.Activate(ctx, id)
	assert.Equal(t, aderrors.ReasonNotApproved, aderrors.ReasonOf(err))

	_, err = f.service.Moderate(ctx, id, DecisionApprove, "")
	require.NoError(t, err)

	_, err = f.service.Activate(ctx, id)
	assert.ErrorIs(t, err, aderrors.ErrInsufficientFunds)
	assert.Equal(t, aderrors.ReasonInsufficientFunds, aderrors.ReasonOf(err))

	f.fund(t, 1, "70")
	ad, err := f.service.Activate(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.AdStatusActive, ad.Status)
	assert.True(t, ad.IsPaid)

	bal, err := f.wallet.GetBalance(ctx, 1)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	// activating again neither fails nor charges twice
	_, err = f.service.Activate(ctx, id)
	require.NoError(t, err)
}

func TestActivateMeteredNeedsOneAffordableEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.service.CreateAd(ctx, bannerSpec())
	require.NoError(t, err)
	_, err = f.service.Moderate(ctx, id, DecisionApprove, "")
	require.NoError(t, err)

	f.fund(t, 1, "0.49")
	_, err = f.service.Activate(ctx, id)
	assert.Equal(t, aderrors.ReasonInsufficientFunds, aderrors.ReasonOf(err))

	f.fund(t, 1, "0.01")
	_, err = f.service.Activate(ctx, id)
	require.NoError(t, err)

	f.clock.Set(now.AddDate(0, 0, 11))
	_, err = f.service.Deactivate(ctx, id)
	require.NoError(t, err)
	_, err = f.service.Activate(ctx, id)
	assert.Equal(t, aderrors.ReasonWindowClosed, aderrors.ReasonOf(err))
}

func TestModerateRejectRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.service.CreateAd(ctx, bannerSpec())
	require.NoError(t, err)

	_, err = f.service.Moderate(ctx, id, DecisionReject, "")
	assert.True(t, aderrors.IsValidation(err))
	_, err = f.service.Moderate(ctx, id, "maybe", "x")
	assert.True(t, aderrors.IsValidation(err))

	ad, err := f.service.Moderate(ctx, id, DecisionReject, "image too small")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, ad.ApprovalStatus)
	assert.Equal(t, models.AdStatusSuspended, ad.Status)
	assert.Contains(t, ad.Notes, "rejected: image too small")
}

func TestRefreshStatusesIsIdempotentAndNeverActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, 1, "10")

	ending, err := f.service.CreateAd(ctx, bannerSpec())
	require.NoError(t, err)
	future := bannerSpec()
	future.StartDate = now.AddDate(0, 0, 20)
	future.EndDate = now.AddDate(0, 0, 30)
	scheduled, err := f.service.CreateAd(ctx, future)
	require.NoError(t, err)
	for _, id := range []uint{ending, scheduled} {
		_, err = f.service.Moderate(ctx, id, DecisionApprove, "")
		require.NoError(t, err)
	}
	_, err = f.service.Activate(ctx, ending)
	require.NoError(t, err)

	f.clock.Set(now.AddDate(0, 0, 25))
	res, err := f.service.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint{ending}, res.Expired)

	res, err = f.service.RefreshStatuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Expired)

	expired, err := f.service.Get(ctx, ending)
	require.NoError(t, err)
	assert.Equal(t, models.AdStatusExpired, expired.Status)

	untouched, err := f.service.Get(ctx, scheduled)
	require.NoError(t, err)
	assert.Equal(t, models.AdStatusInactive, untouched.Status)

	_, err = f.service.Activate(ctx, ending)
	assert.Equal(t, aderrors.ReasonExpired, aderrors.ReasonOf(err))

	_, err = f.service.CorrectDates(ctx, ending, now.AddDate(0, 0, 25), now.AddDate(0, 0, 27))
	require.NoError(t, err)
	ad, err := f.service.Activate(ctx, ending)
	require.NoError(t, err)
	assert.Equal(t, models.AdStatusActive, ad.Status)
}

func TestPlansCatalog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.plan(t, true)
	err := f.service.CreatePlan(ctx, &models.AdCostPlan{Name: "x", AdType: models.AdTypeBanner, DurationDays: 1, IsActive: true})
	assert.True(t, aderrors.IsValidation(err))

	plans, err := f.service.Plans(ctx, models.AdTypeBanner)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
	plans, err = f.service.Plans(ctx, models.AdTypeSponsoredProduct)
	require.NoError(t, err)
	assert.Empty(t, plans)
}
