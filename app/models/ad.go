package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placement types
const (
	AdTypeBanner           = "banner"
	AdTypeSponsoredProduct = "sponsored_product"
)

// Moderation states
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Activity states
const (
	AdStatusInactive  = "inactive"
	AdStatusActive    = "active"
	AdStatusSuspended = "suspended"
	AdStatusExpired   = "expired"
)

// Billing modes. BillingModePlan ads pay a flat plan price up front and are
// never charged per event.
const (
	BillingModePlan          = "plan"
	BillingModePerClick      = "per_click"
	BillingModePerImpression = "per_impression"
	BillingModeDailyBudget   = "daily_budget"
)

// Banner tiers map to page real estate.
const (
	TierHero   = 1
	TierMid    = 2
	TierFooter = 3
)

// Ad is a purchased placement. Money columns are fixed-point decimals.
type Ad struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SellerID  uint   `gorm:"not null;index" json:"seller_id"`
	Type      string `gorm:"type:varchar(30);not null;index:idx_ads_serving,priority:1" json:"type"`
	ProductID *uint  `gorm:"index" json:"product_id,omitempty"`
	Tier      int    `gorm:"not null;default:0;index:idx_ads_serving,priority:2" json:"tier"`
	ImageURL  string `gorm:"type:varchar(500);default:''" json:"image_url,omitempty"`
	LinkURL   string `gorm:"type:varchar(500);default:''" json:"link_url,omitempty"`

	StartDate time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate   time.Time `gorm:"type:date;not null;index" json:"end_date"`

	PlanID            *uint           `gorm:"index" json:"plan_id,omitempty"`
	BillingMode       string          `gorm:"type:varchar(20);not null" json:"billing_mode"`
	Rate              decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"rate"`
	BidAmount         decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"bid_amount"`
	DailyBudget       decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"daily_budget"`
	CurrentDailySpend decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"current_daily_spend"`
	SpendDate         *time.Time      `gorm:"type:date;default:null" json:"spend_date,omitempty"`
	IsPaid            bool            `gorm:"not null;default:false" json:"is_paid"`

	TotalClicks     int64 `gorm:"not null;default:0" json:"total_clicks"`
	RemainingClicks int64 `gorm:"not null;default:0" json:"remaining_clicks"`
	ReachCount      int64 `gorm:"not null;default:0" json:"reach_count"`
	ClickCount      int64 `gorm:"not null;default:0" json:"click_count"`

	ApprovalStatus string `gorm:"type:varchar(20);not null;default:'pending';index:idx_ads_serving,priority:3" json:"approval_status"`
	Status         string `gorm:"type:varchar(20);not null;default:'inactive';index:idx_ads_serving,priority:4" json:"status"`
	AutoPaused     bool   `gorm:"not null;default:false" json:"auto_paused"`
	Notes          string `gorm:"type:text" json:"notes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name used by migrations.
func (Ad) TableName() string { return "ads" }

// InWindow reports start <= day <= end, both ends inclusive, compared by date.
func (a *Ad) InWindow(day time.Time) bool {
	d := dateKey(day)
	return dateKey(a.StartDate) <= d && d <= dateKey(a.EndDate)
}

// IsMetered reports whether events on this ad are charged to the wallet.
func (a *Ad) IsMetered() bool {
	switch a.BillingMode {
	case BillingModePerClick, BillingModePerImpression, BillingModeDailyBudget:
		return true
	}
	return false
}

// ChargesOn reports whether an event of kind is billable under the ad's mode.
// Daily-budget ads bill clicks.
func (a *Ad) ChargesOn(kind string) bool {
	switch a.BillingMode {
	case BillingModePerClick, BillingModeDailyBudget:
		return kind == EventKindClick
	case BillingModePerImpression:
		return kind == EventKindView
	}
	return false
}

// IsClickCapped reports whether the ad was bought as a click bundle.
func (a *Ad) IsClickCapped() bool {
	return a.TotalClicks > 0
}

// DailySpendOn returns the spend attributed to day; spend recorded on an
// earlier day counts as zero.
func (a *Ad) DailySpendOn(day time.Time) decimal.Decimal {
	if !a.SpendDateIs(day) {
		return decimal.Zero
	}
	return a.CurrentDailySpend
}

// SpendDateIs reports whether CurrentDailySpend is attributed to day.
func (a *Ad) SpendDateIs(day time.Time) bool {
	return a.SpendDate != nil && dateKey(*a.SpendDate) == dateKey(day)
}

// AppendNote adds a timestamped line to Notes. Existing notes are never
// rewritten.
func (a *Ad) AppendNote(at time.Time, note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	line := "[" + at.UTC().Format(time.RFC3339) + "] " + note
	if a.Notes == "" {
		a.Notes = line
		return
	}
	a.Notes += "\n" + line
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
