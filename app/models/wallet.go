package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet transaction types
const (
	WalletTxDebit  = "debit"
	WalletTxCredit = "credit"
)

// Wallet holds a seller's prepaid, spendable balance. Balance never goes
// negative; every debit path rejects instead.
type Wallet struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SellerID         uint            `gorm:"not null;uniqueIndex" json:"seller_id"`
	Balance          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	LifetimeSpent    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"lifetime_spent"`
	LifetimeCredited decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"lifetime_credited"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

// WalletTransaction is an immutable ledger row written for every successful
// debit or credit, carrying the resulting balance for reconciliation.
type WalletTransaction struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Reference    string          `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	SellerID     uint            `gorm:"not null;index" json:"seller_id"`
	Type         string          `gorm:"type:varchar(10);not null" json:"type"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Reason       string          `gorm:"type:varchar(255);not null;default:''" json:"reason"`
	AdID         *uint           `gorm:"index" json:"ad_id,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string { return "wallet_transactions" }
