package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds
const (
	EventKindView  = "view"
	EventKindClick = "click"
)

// Event outcomes. Blocked and unbilled events are still logged so the
// table doubles as billing audit trail and fraud input.
const (
	OutcomeCharged          = "charged"
	OutcomeCounted          = "counted"
	OutcomeBlockedDuplicate = "blocked_duplicate"
	OutcomeBlockedFraud     = "blocked_fraud"
	OutcomeUnbilled         = "unbilled"
	OutcomeRejected         = "rejected"
)

// AdEvent is an immutable view/click log row.
type AdEvent struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	EventID    string          `gorm:"type:varchar(36);not null;uniqueIndex" json:"event_id"`
	AdID       uint            `gorm:"not null;index:idx_ad_events_ad_time,priority:1" json:"ad_id"`
	SellerID   uint            `gorm:"not null;index" json:"seller_id"`
	Kind       string          `gorm:"type:varchar(10);not null" json:"kind"`
	IP         string          `gorm:"type:varchar(45);not null;default:''" json:"ip"`
	Outcome    string          `gorm:"type:varchar(20);not null;index" json:"outcome"`
	Charged    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"charged"`
	FraudScore int             `gorm:"not null;default:0" json:"fraud_score"`
	Reason     string          `gorm:"type:varchar(255);not null;default:''" json:"reason,omitempty"`
	OccurredAt time.Time       `gorm:"not null;index:idx_ad_events_ad_time,priority:2" json:"occurred_at"`
}

func (AdEvent) TableName() string { return "ad_events" }

// AdDailyReport aggregates one ad's events per calendar day.
type AdDailyReport struct {
	Date     string          `json:"date"`
	Views    int64           `json:"views"`
	Clicks   int64           `json:"clicks"`
	Charged  int64           `json:"charged"`
	Blocked  int64           `json:"blocked"`
	Unbilled int64           `json:"unbilled"`
	SpendSum decimal.Decimal `json:"spend"`
}
