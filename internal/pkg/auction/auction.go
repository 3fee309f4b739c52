// Package auction picks banner ads with a bid x quality weighted lottery.
package auction

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/app/models"
)

var (
	qualityFloor   = decimal.NewFromInt(60)
	qualityCap     = decimal.NewFromInt(100)
	ctrMultiplier  = decimal.NewFromInt(10)
	qualityWeight  = decimal.RequireFromString("0.4")
	percentDivisor = decimal.NewFromInt(100)
)

// Candidate is an eligible ad entering the auction.
type Candidate struct {
	Ad     *models.Ad
	Bid    decimal.Decimal
	Reach  int64
	Clicks int64
}

// CandidateFromAd takes bid and engagement from the stored ad.
func CandidateFromAd(ad *models.Ad) Candidate {
	return Candidate{Ad: ad, Bid: ad.BidAmount, Reach: ad.ReachCount, Clicks: ad.ClickCount}
}

// AdID returns the id of the candidate's ad, or 0.
func (c Candidate) AdID() uint {
	if c.Ad == nil {
		return 0
	}
	return c.Ad.ID
}

// Scored is a candidate with its auction weights.
type Scored struct {
	Candidate
	CTR          decimal.Decimal
	QualityScore decimal.Decimal
	WeightedBid  decimal.Decimal
}

// Score computes ctr = clicks/reach, quality = min(100, ctr*10)*0.4 + 60 and
// weightedBid = bid * quality/100. The quality floor keeps new ads in play.
func Score(c Candidate) Scored {
	ctr := decimal.Zero
	if c.Reach > 0 {
		ctr = decimal.NewFromInt(c.Clicks).Div(decimal.NewFromInt(c.Reach))
	}
	quality := decimal.Min(qualityCap, ctr.Mul(ctrMultiplier)).Mul(qualityWeight).Add(qualityFloor)
	weighted := c.Bid.Mul(quality).Div(percentDivisor)
	if weighted.IsNegative() {
		weighted = decimal.Zero
	}
	return Scored{Candidate: c, CTR: ctr, QualityScore: quality, WeightedBid: weighted}
}

// RandSource yields uniform draws in [0, 1). *rand.Rand from math/rand/v2
// satisfies it.
type RandSource interface {
	Float64() float64
}

// Select runs the weighted lottery: a uniform draw in [0, total) picks the
// candidate whose cumulative interval contains it. When every weight is zero
// the pick is uniform. Select returns nil for an empty slice.
func Select(scored []Scored, src RandSource) *Scored {
	if len(scored) == 0 {
		return nil
	}
	if len(scored) == 1 {
		return &scored[0]
	}

	total := decimal.Zero
	for _, s := range scored {
		total = total.Add(s.WeightedBid)
	}
	if !total.IsPositive() {
		i := int(src.Float64() * float64(len(scored)))
		if i >= len(scored) {
			i = len(scored) - 1
		}
		return &scored[i]
	}

	draw := total.Mul(decimal.NewFromFloat(src.Float64()))
	cumulative := decimal.Zero
	for i := range scored {
		cumulative = cumulative.Add(scored[i].WeightedBid)
		if draw.LessThan(cumulative) {
			return &scored[i]
		}
	}
	// float rounding can leave draw == total
	for i := len(scored) - 1; i >= 0; i-- {
		if scored[i].WeightedBid.IsPositive() {
			return &scored[i]
		}
	}
	return &scored[len(scored)-1]
}

// Rank orders candidates by weighted bid, highest first. Ties go to the lower
// ad id so the order is deterministic.
func Rank(scored []Scored) []Scored {
	out := make([]Scored, len(scored))
	copy(out, scored)
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].WeightedBid.Cmp(out[j].WeightedBid); c != 0 {
			return c > 0
		}
		return out[i].AdID() < out[j].AdID()
	})
	return out
}
