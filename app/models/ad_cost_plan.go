package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AdCostPlan is a catalog entry (ad type, duration, flat price) sellers pick
// when buying a fixed-duration placement.
type AdCostPlan struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=2,max=100"`
	AdType            string          `gorm:"type:varchar(30);not null;index" json:"ad_type" validate:"required,oneof=banner sponsored_product"`
	Tier              int             `gorm:"not null;default:0" json:"tier" validate:"min=0,max=3"`
	DurationDays      int             `gorm:"not null" json:"duration_days" validate:"required,min=1,max=365"`
	Price             decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"price"`
	CaptureAtCreation bool            `gorm:"not null;default:true" json:"capture_at_creation"`
	IsActive          bool            `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (AdCostPlan) TableName() string { return "ad_cost_plans" }

// DailyValue spreads the plan price over its duration. Used as the bid of
// flat-plan ads in the auction.
func (p *AdCostPlan) DailyValue() decimal.Decimal {
	if p.DurationDays <= 0 {
		return p.Price
	}
	return p.Price.Div(decimal.NewFromInt(int64(p.DurationDays))).Round(4)
}
