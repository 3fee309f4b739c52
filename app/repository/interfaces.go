package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/app/models"
)

// AdRepository defines the interface for ad-related database operations.
// Missing rows are reported as gorm.ErrRecordNotFound by every implementation.
type AdRepository interface {
	Create(ctx context.Context, ad *models.Ad) error
	GetByID(ctx context.Context, id uint) (*models.Ad, error)
	// GetForUpdate loads the ad and holds its row lock until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	GetForUpdate(ctx context.Context, id uint) (*models.Ad, error)
	Save(ctx context.Context, ad *models.Ad) error
	ListBySeller(ctx context.Context, sellerID uint) ([]models.Ad, error)
	// ListServable returns ads of adType passing the stored part of the
	// eligibility invariant on day. Tier 0 matches any tier. Wallet
	// affordability of metered ads is left to the caller.
	ListServable(ctx context.Context, adType string, tier int, day time.Time) ([]models.Ad, error)
	// ListExpirable returns non-expired ads whose end date is before day.
	ListExpirable(ctx context.Context, day time.Time) ([]models.Ad, error)
	// ApplyCounters increments counters in a single update statement.
	ApplyCounters(ctx context.Context, id uint, delta CounterDelta) error
	// ResetDailySpend zeroes current_daily_spend on rows whose spend date is
	// before day and stamps them with day. adID 0 applies to every ad.
	ResetDailySpend(ctx context.Context, day time.Time, adID uint) (int64, error)
}

// CounterDelta describes one atomic counter update on an ad row.
type CounterDelta struct {
	Reach           int64
	Clicks          int64
	RemainingClicks int64
	DailySpend      decimal.Decimal
}

// IsZero reports whether applying the delta would be a no-op.
func (d CounterDelta) IsZero() bool {
	return d.Reach == 0 && d.Clicks == 0 && d.RemainingClicks == 0 && d.DailySpend.IsZero()
}

// AdPlanRepository defines the interface for the ad cost plan catalog.
type AdPlanRepository interface {
	Create(ctx context.Context, plan *models.AdCostPlan) error
	GetByID(ctx context.Context, id uint) (*models.AdCostPlan, error)
	ListActive(ctx context.Context, adType string) ([]models.AdCostPlan, error)
}

// WalletRepository defines the interface for seller wallets and their ledger.
type WalletRepository interface {
	GetBySeller(ctx context.Context, sellerID uint) (*models.Wallet, error)
	// Balances returns the balance of each seller that has a wallet.
	Balances(ctx context.Context, sellerIDs []uint) (map[uint]decimal.Decimal, error)
	// TryDebit subtracts amount only when balance >= amount, as one
	// conditional update. ok is false when the wallet is missing or short;
	// the row is left untouched in that case.
	TryDebit(ctx context.Context, sellerID uint, amount decimal.Decimal) (ok bool, err error)
	// AddCredit creates the wallet when missing and adds amount.
	AddCredit(ctx context.Context, sellerID uint, amount decimal.Decimal) error
	AppendTransaction(ctx context.Context, tx *models.WalletTransaction) error
	ListTransactions(ctx context.Context, sellerID uint, limit int) ([]models.WalletTransaction, error)
}

// AdEventRepository defines the interface for the immutable event log.
type AdEventRepository interface {
	Create(ctx context.Context, event *models.AdEvent) error
	// ListBetween pages through events with from <= occurred_at < to, ordered
	// by id, starting after afterID.
	ListBetween(ctx context.Context, from, to time.Time, afterID uint, limit int) ([]models.AdEvent, error)
	DailyReport(ctx context.Context, adID uint, from, to time.Time) ([]models.AdDailyReport, error)
}

// SettingRepository defines the interface for ad engine settings
type SettingRepository interface {
	Get() (*models.AdSettings, error)
	Save(settings *models.AdSettings) error
	GetValue(key string) (string, error)
	SetValue(key, value string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Ad      AdRepository
	AdPlan  AdPlanRepository
	Wallet  WalletRepository
	AdEvent AdEventRepository
	Setting SettingRepository

	transact func(ctx context.Context, fn func(tx *Repositories) error) error
}

// Transaction runs fn against repositories bound to a single transaction.
// Returning an error from fn rolls every write back. Calling Transaction on
// repositories that are already transactional runs fn in the same transaction.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	if r.transact == nil {
		return fn(r)
	}
	return r.transact(ctx, fn)
}
