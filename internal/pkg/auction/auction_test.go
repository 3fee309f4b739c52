package auction

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scored(id uint, weight string) Scored {
	return Scored{Candidate: Candidate{Ad: &models.Ad{ID: id}}, WeightedBid: dec(weight)}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		c        Candidate
		quality  string
		weighted string
	}{
		{"untested ad gets the floor", Candidate{Bid: dec("2")}, "60", "1.2"},
		{"ctr 5%", Candidate{Bid: dec("2"), Reach: 100, Clicks: 5}, "60.2", "1.204"},
		{"quality is capped", Candidate{Bid: dec("300"), Reach: 1, Clicks: 10}, "100", "300"},
		{"ctr above cap", Candidate{Bid: dec("10"), Reach: 1, Clicks: 50}, "100", "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.c)
			assert.True(t, s.QualityScore.Equal(dec(tt.quality)), s.QualityScore.String())
			assert.True(t, s.WeightedBid.Equal(dec(tt.weighted)), s.WeightedBid.String())
		})
	}
}

func TestSelectIsProportional(t *testing.T) {
	src := rand.New(rand.NewPCG(42, 7))
	cands := []Scored{scored(1, "100"), scored(2, "300")}

	wins := map[uint]int{}
	const draws = 10000
	for i := 0; i < draws; i++ {
		wins[Select(cands, src).AdID()]++
	}

	assert.InDelta(t, 2500, wins[1], 300)
	assert.InDelta(t, 7500, wins[2], 300)
	assert.Equal(t, draws, wins[1]+wins[2])
}

func TestSelectDegenerateCases(t *testing.T) {
	src := rand.New(rand.NewPCG(1, 2))
	assert.Nil(t, Select(nil, src))

	single := []Scored{scored(9, "0")}
	assert.Equal(t, uint(9), Select(single, src).AdID())

	zero := []Scored{scored(1, "0"), scored(2, "0"), scored(3, "0")}
	wins := map[uint]int{}
	for i := 0; i < 3000; i++ {
		wins[Select(zero, src).AdID()]++
	}
	assert.Len(t, wins, 3)

	// a zero-weight candidate never wins against a positive one
	mixed := []Scored{scored(1, "0"), scored(2, "5")}
	for i := 0; i < 500; i++ {
		assert.Equal(t, uint(2), Select(mixed, src).AdID())
	}
}

func TestRankBreaksTiesByAdID(t *testing.T) {
	ranked := Rank([]Scored{scored(5, "1"), scored(3, "2"), scored(2, "1"), scored(7, "2")})
	ids := make([]uint, len(ranked))
	for i, s := range ranked {
		ids[i] = s.AdID()
	}
	assert.Equal(t, []uint{3, 7, 2, 5}, ids)
}

func TestSelectBannerForSlotOnlyReturnsEligibleAds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)
	repos := repository.NewMemoryRepositories()
	wallets := wallet.NewService(repos)
	_, err := wallets.Credit(ctx, wallet.Entry{SellerID: 1, Amount: dec("50")})
	require.NoError(t, err)

	base := func(mutate func(ad *models.Ad)) uint {
		ad := &models.Ad{
			SellerID:       1,
			Type:           models.AdTypeBanner,
			Tier:           models.TierHero,
			StartDate:      now.AddDate(0, 0, -2),
			EndDate:        now.AddDate(0, 0, 2),
			BillingMode:    models.BillingModePerClick,
			Rate:           dec("1"),
			BidAmount:      dec("1"),
			ApprovalStatus: models.ApprovalApproved,
			Status:         models.AdStatusActive,
		}
		if mutate != nil {
			mutate(ad)
		}
		require.NoError(t, repos.Ad.Create(ctx, ad))
		return ad.ID
	}

	eligible := base(nil)
	plan := base(func(ad *models.Ad) {
		ad.SellerID = 2
		ad.BillingMode = models.BillingModePlan
		ad.Rate = decimal.Zero
		ad.IsPaid = true
	})
	// not servable or not affordable
	base(func(ad *models.Ad) { ad.SellerID = 3 })
	base(func(ad *models.Ad) { ad.Tier = models.TierMid })
	base(func(ad *models.Ad) { ad.ApprovalStatus = models.ApprovalPending })
	base(func(ad *models.Ad) {
		ad.AutoPaused = true
		ad.Status = models.AdStatusInactive
	})
	base(func(ad *models.Ad) { ad.EndDate = now.AddDate(0, 0, -1) })
	base(func(ad *models.Ad) {
		ad.BillingMode = models.BillingModePlan
		ad.Rate = decimal.Zero
	})
	base(func(ad *models.Ad) {
		ad.TotalClicks = 10
		ad.RemainingClicks = 0
	})

	engine := NewEngine(repos, clock.NewFixedClock(now), rand.New(rand.NewPCG(3, 4)))
	wins := map[uint]int{}
	for i := 0; i < 200; i++ {
		ad, err := engine.SelectBannerForSlot(ctx, models.TierHero, SlotContext{Page: "home"})
		require.NoError(t, err)
		require.NotNil(t, ad)
		wins[ad.ID]++
	}
	assert.Len(t, wins, 2)
	assert.Positive(t, wins[eligible])
	assert.Positive(t, wins[plan])

	ad, err := engine.SelectBannerForSlot(ctx, models.TierFooter, SlotContext{})
	require.NoError(t, err)
	assert.Nil(t, ad)

	_, err = engine.SelectBannerForSlot(ctx, 4, SlotContext{})
	assert.True(t, aderrors.IsValidation(err))
}
