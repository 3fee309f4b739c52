package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// adPlanRepository implements the AdPlanRepository interface
type adPlanRepository struct {
	db *gorm.DB
}

// NewAdPlanRepository creates a new ad plan repository instance
func NewAdPlanRepository(db *gorm.DB) AdPlanRepository {
	return &adPlanRepository{db: db}
}

// Create creates a new cost plan
func (r *adPlanRepository) Create(ctx context.Context, plan *models.AdCostPlan) error {
	return mapError(r.db.WithContext(ctx).Create(plan).Error)
}

// GetByID retrieves a cost plan by its ID
func (r *adPlanRepository) GetByID(ctx context.Context, id uint) (*models.AdCostPlan, error) {
	var plan models.AdCostPlan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, mapError(err)
	}
	return &plan, nil
}

// ListActive retrieves active plans, optionally filtered by ad type
func (r *adPlanRepository) ListActive(ctx context.Context, adType string) ([]models.AdCostPlan, error) {
	var plans []models.AdCostPlan
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if adType != "" {
		query = query.Where("ad_type = ?", adType)
	}
	err := query.Order("ad_type ASC, tier ASC, duration_days ASC").Find(&plans).Error
	return plans, mapError(err)
}
