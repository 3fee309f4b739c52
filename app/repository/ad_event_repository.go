package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// adEventRepository implements the AdEventRepository interface
type adEventRepository struct {
	db *gorm.DB
}

// NewAdEventRepository creates a new ad event repository instance
func NewAdEventRepository(db *gorm.DB) AdEventRepository {
	return &adEventRepository{db: db}
}

// Create appends an event to the log
func (r *adEventRepository) Create(ctx context.Context, event *models.AdEvent) error {
	return mapError(r.db.WithContext(ctx).Create(event).Error)
}

// ListBetween pages through events of a time range
func (r *adEventRepository) ListBetween(ctx context.Context, from, to time.Time, afterID uint, limit int) ([]models.AdEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	var events []models.AdEvent
	err := r.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ? AND id > ?", from, to, afterID).
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	return events, mapError(err)
}

// DailyReport aggregates an ad's events per day
func (r *adEventRepository) DailyReport(ctx context.Context, adID uint, from, to time.Time) ([]models.AdDailyReport, error) {
	var rows []models.AdDailyReport
	err := r.db.WithContext(ctx).Raw(`
		SELECT DATE_FORMAT(occurred_at, '%Y-%m-%d') AS date,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS views,
			SUM(CASE WHEN kind = ? THEN 1 ELSE 0 END) AS clicks,
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) AS charged,
			SUM(CASE WHEN outcome IN (?, ?) THEN 1 ELSE 0 END) AS blocked,
			SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END) AS unbilled,
			COALESCE(SUM(charged), 0) AS spend_sum
		FROM ad_events
		WHERE ad_id = ? AND occurred_at >= ? AND occurred_at < ?
		GROUP BY DATE_FORMAT(occurred_at, '%Y-%m-%d')
		ORDER BY date ASC`,
		models.EventKindView, models.EventKindClick,
		models.OutcomeCharged,
		models.OutcomeBlockedDuplicate, models.OutcomeBlockedFraud,
		models.OutcomeUnbilled,
		adID, from, to,
	).Scan(&rows).Error
	return rows, mapError(err)
}
