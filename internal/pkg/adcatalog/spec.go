package adcatalog

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
)

// AdSpec is a seller's request to buy a placement. Exactly one of PlanID or
// BillingMode must be set.
type AdSpec struct {
	SellerID  uint      `json:"seller_id" validate:"required"`
	Type      string    `json:"type" validate:"required,oneof=banner sponsored_product"`
	ProductID *uint     `json:"product_id"`
	Tier      int       `json:"tier" validate:"min=0,max=3"`
	ImageURL  string    `json:"image_url" validate:"omitempty,url,max=500"`
	LinkURL   string    `json:"link_url" validate:"omitempty,url,max=500"`
	StartDate time.Time `json:"start_date" validate:"required"`
	// EndDate is derived from the plan duration for plan purchases.
	EndDate time.Time `json:"end_date"`

	PlanID      *uint           `json:"plan_id"`
	BillingMode string          `json:"billing_mode" validate:"omitempty,oneof=per_click per_impression daily_budget"`
	Rate        decimal.Decimal `json:"rate"`
	BidAmount   decimal.Decimal `json:"bid_amount"`
	DailyBudget decimal.Decimal `json:"daily_budget"`
	TotalClicks int64           `json:"total_clicks" validate:"min=0"`
}

// checkShape runs the cross-field rules the struct tags cannot express.
func (s *AdSpec) checkShape(today time.Time) error {
	ve := &aderrors.ValidationError{}

	switch s.Type {
	case models.AdTypeBanner:
		if s.Tier < models.TierHero || s.Tier > models.TierFooter {
			ve.Add("tier", "banners need a tier between 1 and 3")
		}
		if s.ImageURL == "" {
			ve.Add("image_url", "is required for banners")
		}
		if s.LinkURL == "" {
			ve.Add("link_url", "is required for banners")
		}
	case models.AdTypeSponsoredProduct:
		if s.ProductID == nil || *s.ProductID == 0 {
			ve.Add("product_id", "is required for sponsored products")
		}
		if s.Tier != 0 {
			ve.Add("tier", "is only used by banners")
		}
	}

	if !s.StartDate.IsZero() && isPast(s.StartDate, today) {
		ve.Add("start_date", "must not be in the past")
	}

	hasPlan := s.PlanID != nil && *s.PlanID != 0
	switch {
	case hasPlan && s.BillingMode != "":
		ve.Add("billing_mode", "cannot be combined with plan_id")
	case !hasPlan && s.BillingMode == "":
		ve.Add("billing_mode", "either plan_id or billing_mode is required")
	case hasPlan:
		if !s.Rate.IsZero() || !s.DailyBudget.IsZero() || s.TotalClicks != 0 {
			ve.Add("plan_id", "plan purchases carry no rate, budget or click bundle")
		}
	default:
		if !s.Rate.IsPositive() {
			ve.Add("rate", "must be greater than zero")
		}
		if s.BidAmount.IsNegative() {
			ve.Add("bid_amount", "must not be negative")
		}
		if s.EndDate.IsZero() {
			ve.Add("end_date", "is required without a plan")
		} else if s.EndDate.Before(s.StartDate) {
			ve.Add("end_date", "must not be before start_date")
		}
		if s.BillingMode == models.BillingModeDailyBudget {
			if !s.DailyBudget.IsPositive() {
				ve.Add("daily_budget", "must be greater than zero")
			} else if s.Rate.GreaterThan(s.DailyBudget) {
				ve.Add("rate", "must not exceed daily_budget")
			}
		} else if !s.DailyBudget.IsZero() {
			ve.Add("daily_budget", "is only used in daily_budget mode")
		}
		if s.TotalClicks > 0 && s.BillingMode != models.BillingModePerClick {
			ve.Add("total_clicks", "click bundles require per_click billing")
		}
	}
	return ve.OrNil()
}
