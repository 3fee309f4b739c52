package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// walletRepository implements the WalletRepository interface
type walletRepository struct {
	db *gorm.DB
}

// NewWalletRepository creates a new wallet repository instance
func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

// GetBySeller retrieves the wallet of a seller
func (r *walletRepository) GetBySeller(ctx context.Context, sellerID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&wallet).Error; err != nil {
		return nil, mapError(err)
	}
	return &wallet, nil
}

// Balances retrieves the balances of several sellers in one query
func (r *walletRepository) Balances(ctx context.Context, sellerIDs []uint) (map[uint]decimal.Decimal, error) {
	out := make(map[uint]decimal.Decimal, len(sellerIDs))
	if len(sellerIDs) == 0 {
		return out, nil
	}
	var wallets []models.Wallet
	err := r.db.WithContext(ctx).
		Select("seller_id", "balance").
		Where("seller_id IN ?", sellerIDs).
		Find(&wallets).Error
	if err != nil {
		return nil, mapError(err)
	}
	for _, w := range wallets {
		out[w.SellerID] = w.Balance
	}
	return out, nil
}

// TryDebit is a compare-and-set on the balance column: the WHERE clause
// guarantees the balance never drops below zero.
func (r *walletRepository) TryDebit(ctx context.Context, sellerID uint, amount decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("seller_id = ? AND balance >= ?", sellerID, amount).
		UpdateColumns(map[string]interface{}{
			"balance":        gorm.Expr("balance - ?", amount),
			"lifetime_spent": gorm.Expr("lifetime_spent + ?", amount),
		})
	if result.Error != nil {
		return false, mapError(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// AddCredit upserts the wallet and increments its balance
func (r *walletRepository) AddCredit(ctx context.Context, sellerID uint, amount decimal.Decimal) error {
	wallet := models.Wallet{
		SellerID:         sellerID,
		Balance:          amount,
		LifetimeCredited: amount,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":           gorm.Expr("balance + ?", amount),
			"lifetime_credited": gorm.Expr("lifetime_credited + ?", amount),
		}),
	}).Create(&wallet).Error
	return mapError(err)
}

// AppendTransaction writes a ledger row
func (r *walletRepository) AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error {
	return mapError(r.db.WithContext(ctx).Create(tx).Error)
}

// ListTransactions retrieves the newest ledger rows of a seller
func (r *walletRepository) ListTransactions(ctx context.Context, sellerID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, mapError(err)
}
