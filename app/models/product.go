package models

import (
	"github.com/shopspring/decimal"
)

// Product statuses as written by the storefront catalog.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Product is a read-only view of the storefront's products table. The ad
// engine never writes it.
type Product struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	SellerID   uint            `gorm:"not null;index" json:"seller_id"`
	Name       string          `gorm:"type:varchar(255)" json:"name"`
	Slug       string          `gorm:"type:varchar(255)" json:"slug"`
	ImageURL   string          `gorm:"type:varchar(500)" json:"image_url"`
	Price      decimal.Decimal `gorm:"type:decimal(20,4)" json:"price"`
	Status     string          `gorm:"type:varchar(20)" json:"status"`
	IsApproved bool            `json:"is_approved"`
}

func (Product) TableName() string { return "products" }
