package auction

import (
	"context"
	"math/rand/v2"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adbilling"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

// SlotContext describes where a banner is rendered.
type SlotContext struct {
	Page     string `json:"page" query:"page"`
	Category string `json:"category" query:"category"`
}

// globalSource draws from the goroutine-safe top-level math/rand/v2 source.
type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// Engine loads eligible ads and runs the lottery over them.
type Engine struct {
	repos  *repository.Repositories
	wallet *wallet.Service
	clock  clock.Clock
	rand   RandSource
}

// NewEngine creates an auction engine. A nil src uses math/rand/v2.
// A seeded source must be safe for concurrent use if the engine is shared.
func NewEngine(repos *repository.Repositories, clk clock.Clock, src RandSource) *Engine {
	if src == nil {
		src = globalSource{}
	}
	return &Engine{
		repos:  repos,
		wallet: wallet.NewService(repos),
		clock:  clk,
		rand:   src,
	}
}

// Eligible returns the scored ads of adType and tier (0 = any) that satisfy
// the eligibility invariant today and whose seller can afford one more
// chargeable event. Balances are fetched in one batch.
func (e *Engine) Eligible(ctx context.Context, adType string, tier int) ([]Scored, error) {
	today := clock.Today(e.clock)
	ads, err := e.repos.Ad.ListServable(ctx, adType, tier, today)
	if err != nil {
		return nil, err
	}
	if len(ads) == 0 {
		return nil, nil
	}

	sellers := make([]uint, 0, len(ads))
	seen := make(map[uint]bool, len(ads))
	for i := range ads {
		if !seen[ads[i].SellerID] {
			seen[ads[i].SellerID] = true
			sellers = append(sellers, ads[i].SellerID)
		}
	}
	balances, err := e.wallet.Balances(ctx, sellers)
	if err != nil {
		return nil, err
	}

	out := make([]Scored, 0, len(ads))
	for i := range ads {
		ad := &ads[i]
		if reason := adbilling.Affordability(ad, balances[ad.SellerID], today); reason != aderrors.ReasonNone {
			log.Debugf("[Auction] Skipping ad %d: %s", ad.ID, reason)
			continue
		}
		out = append(out, Score(CandidateFromAd(ad)))
	}
	return out, nil
}

// SelectBannerForSlot picks one banner for tier. No eligible ad is not an
// error: the result is nil and the slot renders empty.
func (e *Engine) SelectBannerForSlot(ctx context.Context, tier int, slot SlotContext) (*models.Ad, error) {
	if tier < models.TierHero || tier > models.TierFooter {
		return nil, aderrors.Invalid("tier", "must be between 1 and 3")
	}
	scored, err := e.Eligible(ctx, models.AdTypeBanner, tier)
	if err != nil {
		return nil, err
	}
	winner := Select(scored, e.rand)
	if winner == nil {
		log.Debugf("[Auction] No eligible banner for tier %d (page %q)", tier, slot.Page)
		return nil, nil
	}
	return winner.Ad, nil
}
