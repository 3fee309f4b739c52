package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// adRepository implements the AdRepository interface
type adRepository struct {
	db *gorm.DB
}

// NewAdRepository creates a new ad repository instance
func NewAdRepository(db *gorm.DB) AdRepository {
	return &adRepository{db: db}
}

// Create creates a new ad in the database
func (r *adRepository) Create(ctx context.Context, ad *models.Ad) error {
	return mapError(r.db.WithContext(ctx).Create(ad).Error)
}

// GetByID retrieves an ad by its ID
func (r *adRepository) GetByID(ctx context.Context, id uint) (*models.Ad, error) {
	var ad models.Ad
	if err := r.db.WithContext(ctx).First(&ad, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &ad, nil
}

// GetForUpdate retrieves an ad and locks its row (SELECT ... FOR UPDATE)
func (r *adRepository) GetForUpdate(ctx context.Context, id uint) (*models.Ad, error) {
	var ad models.Ad
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ad, id).Error
	if err != nil {
		return nil, mapError(err)
	}
	return &ad, nil
}

// Save updates every column of an existing ad
func (r *adRepository) Save(ctx context.Context, ad *models.Ad) error {
	return mapError(r.db.WithContext(ctx).Save(ad).Error)
}

// ListBySeller retrieves all ads of a seller, newest first
func (r *adRepository) ListBySeller(ctx context.Context, sellerID uint) ([]models.Ad, error) {
	var ads []models.Ad
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&ads).Error
	return ads, mapError(err)
}

// ListServable retrieves approved, active, in-window, unpaused ads. Plan ads
// must be paid; metered ads are filtered on wallet balance by the caller.
func (r *adRepository) ListServable(ctx context.Context, adType string, tier int, day time.Time) ([]models.Ad, error) {
	var ads []models.Ad
	d := day.Format("2006-01-02")
	query := r.db.WithContext(ctx).
		Where("type = ?", adType).
		Where("approval_status = ? AND status = ? AND auto_paused = ?", models.ApprovalApproved, models.AdStatusActive, false).
		Where("start_date <= ? AND end_date >= ?", d, d).
		Where("(billing_mode <> ? OR is_paid = ?)", models.BillingModePlan, true)
	if tier > 0 {
		query = query.Where("tier = ?", tier)
	}
	err := query.Order("id ASC").Find(&ads).Error
	return ads, mapError(err)
}

// ListExpirable retrieves ads whose end date has passed but are not yet expired
func (r *adRepository) ListExpirable(ctx context.Context, day time.Time) ([]models.Ad, error) {
	var ads []models.Ad
	err := r.db.WithContext(ctx).
		Where("end_date < ? AND status <> ?", day.Format("2006-01-02"), models.AdStatusExpired).
		Order("id ASC").
		Find(&ads).Error
	return ads, mapError(err)
}

// ApplyCounters atomically increments the ad's counters
func (r *adRepository) ApplyCounters(ctx context.Context, id uint, delta CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	updates := map[string]interface{}{}
	if delta.Reach != 0 {
		updates["reach_count"] = gorm.Expr("reach_count + ?", delta.Reach)
	}
	if delta.Clicks != 0 {
		updates["click_count"] = gorm.Expr("click_count + ?", delta.Clicks)
	}
	if delta.RemainingClicks != 0 {
		updates["remaining_clicks"] = gorm.Expr("remaining_clicks + ?", delta.RemainingClicks)
	}
	if !delta.DailySpend.IsZero() {
		updates["current_daily_spend"] = gorm.Expr("current_daily_spend + ?", delta.DailySpend)
	}
	result := r.db.WithContext(ctx).Model(&models.Ad{}).Where("id = ?", id).UpdateColumns(updates)
	if result.Error != nil {
		return mapError(result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ResetDailySpend rolls the daily spend of ads last charged before day
func (r *adRepository) ResetDailySpend(ctx context.Context, day time.Time, adID uint) (int64, error) {
	d := day.Format("2006-01-02")
	query := r.db.WithContext(ctx).Model(&models.Ad{}).
		Where("spend_date IS NULL OR spend_date < ?", d)
	if adID != 0 {
		query = query.Where("id = ?", adID)
	}
	result := query.UpdateColumns(map[string]interface{}{
		"current_daily_spend": 0,
		"spend_date":          d,
	})
	return result.RowsAffected, mapError(result.Error)
}
