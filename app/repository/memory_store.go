package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
)

// memoryState is the whole in-process dataset. Rows are stored by value so a
// shallow map copy is a consistent snapshot.
type memoryState struct {
	ads      map[uint]models.Ad
	plans    map[uint]models.AdCostPlan
	wallets  map[uint]models.Wallet
	walletTx []models.WalletTransaction
	events   []models.AdEvent
	settings map[string]string
	refs     map[string]struct{}
	eventIDs map[string]struct{}

	nextAdID, nextPlanID, nextWalletID, nextTxID, nextEventID uint
}

func newMemoryState() *memoryState {
	return &memoryState{
		ads:      map[uint]models.Ad{},
		plans:    map[uint]models.AdCostPlan{},
		wallets:  map[uint]models.Wallet{},
		settings: map[string]string{},
		refs:     map[string]struct{}{},
		eventIDs: map[string]struct{}{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := *s
	c.ads = make(map[uint]models.Ad, len(s.ads))
	for k, v := range s.ads {
		c.ads[k] = v
	}
	c.plans = make(map[uint]models.AdCostPlan, len(s.plans))
	for k, v := range s.plans {
		c.plans[k] = v
	}
	c.wallets = make(map[uint]models.Wallet, len(s.wallets))
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.settings = make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		c.settings[k] = v
	}
	c.refs = make(map[string]struct{}, len(s.refs))
	for k := range s.refs {
		c.refs[k] = struct{}{}
	}
	c.eventIDs = make(map[string]struct{}, len(s.eventIDs))
	for k := range s.eventIDs {
		c.eventIDs[k] = struct{}{}
	}
	c.walletTx = append([]models.WalletTransaction(nil), s.walletTx...)
	c.events = append([]models.AdEvent(nil), s.events...)
	return &c
}

type memoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

// memoryConn serializes access to the store. Inside a transaction the store
// lock is already held for the whole callback.
type memoryConn struct {
	store *memoryStore
	inTx  bool
}

func (c *memoryConn) do(fn func(s *memoryState) error) error {
	if c.inTx {
		return fn(c.store.state)
	}
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return fn(c.store.state)
}

// NewMemoryRepositories returns repositories over a fresh in-process store.
// Transactions hold a single store-wide lock and restore a snapshot when the
// callback fails, so they are serializable.
func NewMemoryRepositories() *Repositories {
	store := &memoryStore{state: newMemoryState()}
	repos := newMemoryRepositories(&memoryConn{store: store})
	repos.transact = func(_ context.Context, fn func(tx *Repositories) error) error {
		store.mu.Lock()
		defer store.mu.Unlock()

		txRepos := newMemoryRepositories(&memoryConn{store: store, inTx: true})
		txRepos.transact = func(_ context.Context, inner func(*Repositories) error) error {
			savepoint := store.state.clone()
			if err := inner(txRepos); err != nil {
				store.state = savepoint
				return err
			}
			return nil
		}

		snapshot := store.state.clone()
		if err := fn(txRepos); err != nil {
			store.state = snapshot
			return err
		}
		return nil
	}
	return repos
}

func newMemoryRepositories(conn *memoryConn) *Repositories {
	return &Repositories{
		Ad:      &memoryAdRepository{conn: conn},
		AdPlan:  &memoryAdPlanRepository{conn: conn},
		Wallet:  &memoryWalletRepository{conn: conn},
		AdEvent: &memoryAdEventRepository{conn: conn},
		Setting: &memorySettingRepository{conn: conn},
	}
}

func memDate(t time.Time) string { return t.Format("2006-01-02") }

func copyTime(t time.Time) *time.Time { return &t }

type memoryAdRepository struct{ conn *memoryConn }

func (r *memoryAdRepository) Create(_ context.Context, ad *models.Ad) error {
	return r.conn.do(func(s *memoryState) error {
		s.nextAdID++
		ad.ID = s.nextAdID
		now := time.Now()
		if ad.CreatedAt.IsZero() {
			ad.CreatedAt = now
		}
		ad.UpdatedAt = now
		if ad.ApprovalStatus == "" {
			ad.ApprovalStatus = models.ApprovalPending
		}
		if ad.Status == "" {
			ad.Status = models.AdStatusInactive
		}
		s.ads[ad.ID] = *ad
		return nil
	})
}

func (r *memoryAdRepository) GetByID(_ context.Context, id uint) (*models.Ad, error) {
	var out *models.Ad
	err := r.conn.do(func(s *memoryState) error {
		ad, ok := s.ads[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &ad
		return nil
	})
	return out, err
}

func (r *memoryAdRepository) GetForUpdate(ctx context.Context, id uint) (*models.Ad, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryAdRepository) Save(_ context.Context, ad *models.Ad) error {
	return r.conn.do(func(s *memoryState) error {
		if _, ok := s.ads[ad.ID]; !ok {
			return gorm.ErrRecordNotFound
		}
		ad.UpdatedAt = time.Now()
		s.ads[ad.ID] = *ad
		return nil
	})
}

func (r *memoryAdRepository) ListBySeller(_ context.Context, sellerID uint) ([]models.Ad, error) {
	return r.filter(func(ad *models.Ad) bool { return ad.SellerID == sellerID }, true)
}

func (r *memoryAdRepository) ListServable(_ context.Context, adType string, tier int, day time.Time) ([]models.Ad, error) {
	return r.filter(func(ad *models.Ad) bool {
		if ad.Type != adType || (tier > 0 && ad.Tier != tier) {
			return false
		}
		if ad.ApprovalStatus != models.ApprovalApproved || ad.Status != models.AdStatusActive || ad.AutoPaused {
			return false
		}
		if ad.BillingMode == models.BillingModePlan && !ad.IsPaid {
			return false
		}
		return ad.InWindow(day)
	}, false)
}

func (r *memoryAdRepository) ListExpirable(_ context.Context, day time.Time) ([]models.Ad, error) {
	d := memDate(day)
	return r.filter(func(ad *models.Ad) bool {
		return memDate(ad.EndDate) < d && ad.Status != models.AdStatusExpired
	}, false)
}

func (r *memoryAdRepository) filter(keep func(*models.Ad) bool, newestFirst bool) ([]models.Ad, error) {
	var out []models.Ad
	err := r.conn.do(func(s *memoryState) error {
		for _, ad := range s.ads {
			if keep(&ad) {
				out = append(out, ad)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *memoryAdRepository) ApplyCounters(_ context.Context, id uint, delta CounterDelta) error {
	if delta.IsZero() {
		return nil
	}
	return r.conn.do(func(s *memoryState) error {
		ad, ok := s.ads[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		ad.ReachCount += delta.Reach
		ad.ClickCount += delta.Clicks
		ad.RemainingClicks += delta.RemainingClicks
		ad.CurrentDailySpend = ad.CurrentDailySpend.Add(delta.DailySpend)
		ad.UpdatedAt = time.Now()
		s.ads[id] = ad
		return nil
	})
}

func (r *memoryAdRepository) ResetDailySpend(_ context.Context, day time.Time, adID uint) (int64, error) {
	var n int64
	d := memDate(day)
	err := r.conn.do(func(s *memoryState) error {
		for id, ad := range s.ads {
			if adID != 0 && id != adID {
				continue
			}
			if ad.SpendDate != nil && memDate(*ad.SpendDate) >= d {
				continue
			}
			ad.CurrentDailySpend = decimal.Zero
			ad.SpendDate = copyTime(clock.DateOf(day))
			s.ads[id] = ad
			n++
		}
		return nil
	})
	return n, err
}

type memoryAdPlanRepository struct{ conn *memoryConn }

func (r *memoryAdPlanRepository) Create(_ context.Context, plan *models.AdCostPlan) error {
	return r.conn.do(func(s *memoryState) error {
		s.nextPlanID++
		plan.ID = s.nextPlanID
		now := time.Now()
		plan.CreatedAt, plan.UpdatedAt = now, now
		s.plans[plan.ID] = *plan
		return nil
	})
}

func (r *memoryAdPlanRepository) GetByID(_ context.Context, id uint) (*models.AdCostPlan, error) {
	var out *models.AdCostPlan
	err := r.conn.do(func(s *memoryState) error {
		plan, ok := s.plans[id]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &plan
		return nil
	})
	return out, err
}

func (r *memoryAdPlanRepository) ListActive(_ context.Context, adType string) ([]models.AdCostPlan, error) {
	var out []models.AdCostPlan
	err := r.conn.do(func(s *memoryState) error {
		for _, p := range s.plans {
			if p.IsActive && (adType == "" || p.AdType == adType) {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AdType != b.AdType {
			return a.AdType < b.AdType
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.DurationDays < b.DurationDays
	})
	return out, err
}

type memoryWalletRepository struct{ conn *memoryConn }

func (r *memoryWalletRepository) GetBySeller(_ context.Context, sellerID uint) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.conn.do(func(s *memoryState) error {
		w, ok := s.wallets[sellerID]
		if !ok {
			return gorm.ErrRecordNotFound
		}
		out = &w
		return nil
	})
	return out, err
}

func (r *memoryWalletRepository) Balances(_ context.Context, sellerIDs []uint) (map[uint]decimal.Decimal, error) {
	out := make(map[uint]decimal.Decimal, len(sellerIDs))
	err := r.conn.do(func(s *memoryState) error {
		for _, id := range sellerIDs {
			if w, ok := s.wallets[id]; ok {
				out[id] = w.Balance
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryWalletRepository) TryDebit(_ context.Context, sellerID uint, amount decimal.Decimal) (bool, error) {
	ok := false
	err := r.conn.do(func(s *memoryState) error {
		w, exists := s.wallets[sellerID]
		if !exists || w.Balance.LessThan(amount) {
			return nil
		}
		w.Balance = w.Balance.Sub(amount)
		w.LifetimeSpent = w.LifetimeSpent.Add(amount)
		w.UpdatedAt = time.Now()
		s.wallets[sellerID] = w
		ok = true
		return nil
	})
	return ok, err
}

func (r *memoryWalletRepository) AddCredit(_ context.Context, sellerID uint, amount decimal.Decimal) error {
	return r.conn.do(func(s *memoryState) error {
		now := time.Now()
		w, exists := s.wallets[sellerID]
		if !exists {
			s.nextWalletID++
			w = models.Wallet{ID: s.nextWalletID, SellerID: sellerID, CreatedAt: now}
		}
		w.Balance = w.Balance.Add(amount)
		w.LifetimeCredited = w.LifetimeCredited.Add(amount)
		w.UpdatedAt = now
		s.wallets[sellerID] = w
		return nil
	})
}

func (r *memoryWalletRepository) AppendTransaction(_ context.Context, tx *models.WalletTransaction) error {
	return r.conn.do(func(s *memoryState) error {
		if _, dup := s.refs[tx.Reference]; dup {
			return gorm.ErrDuplicatedKey
		}
		s.nextTxID++
		tx.ID = s.nextTxID
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}
		s.refs[tx.Reference] = struct{}{}
		s.walletTx = append(s.walletTx, *tx)
		return nil
	})
}

func (r *memoryWalletRepository) ListTransactions(_ context.Context, sellerID uint, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.WalletTransaction
	err := r.conn.do(func(s *memoryState) error {
		for i := len(s.walletTx) - 1; i >= 0 && len(out) < limit; i-- {
			if s.walletTx[i].SellerID == sellerID {
				out = append(out, s.walletTx[i])
			}
		}
		return nil
	})
	return out, err
}

type memoryAdEventRepository struct{ conn *memoryConn }

func (r *memoryAdEventRepository) Create(_ context.Context, event *models.AdEvent) error {
	return r.conn.do(func(s *memoryState) error {
		if _, dup := s.eventIDs[event.EventID]; dup {
			return gorm.ErrDuplicatedKey
		}
		s.nextEventID++
		event.ID = s.nextEventID
		s.eventIDs[event.EventID] = struct{}{}
		s.events = append(s.events, *event)
		return nil
	})
}

func (r *memoryAdEventRepository) ListBetween(_ context.Context, from, to time.Time, afterID uint, limit int) ([]models.AdEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	var out []models.AdEvent
	err := r.conn.do(func(s *memoryState) error {
		for _, e := range s.events {
			if len(out) == limit {
				break
			}
			if e.ID > afterID && !e.OccurredAt.Before(from) && e.OccurredAt.Before(to) {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryAdEventRepository) DailyReport(_ context.Context, adID uint, from, to time.Time) ([]models.AdDailyReport, error) {
	byDay := map[string]*models.AdDailyReport{}
	err := r.conn.do(func(s *memoryState) error {
		for _, e := range s.events {
			if e.AdID != adID || e.OccurredAt.Before(from) || !e.OccurredAt.Before(to) {
				continue
			}
			day := memDate(e.OccurredAt)
			row, ok := byDay[day]
			if !ok {
				row = &models.AdDailyReport{Date: day, SpendSum: decimal.Zero}
				byDay[day] = row
			}
			switch e.Kind {
			case models.EventKindView:
				row.Views++
			case models.EventKindClick:
				row.Clicks++
			}
			switch e.Outcome {
			case models.OutcomeCharged:
				row.Charged++
			case models.OutcomeBlockedDuplicate, models.OutcomeBlockedFraud:
				row.Blocked++
			case models.OutcomeUnbilled:
				row.Unbilled++
			}
			row.SpendSum = row.SpendSum.Add(e.Charged)
		}
		return nil
	})
	out := make([]models.AdDailyReport, 0, len(byDay))
	for _, row := range byDay {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, err
}

type memorySettingRepository struct{ conn *memoryConn }

func (r *memorySettingRepository) Get() (*models.AdSettings, error) {
	return models.GetAdSettings(), nil
}

func (r *memorySettingRepository) Save(settings *models.AdSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	models.SetAdSettings(settings)
	return nil
}

func (r *memorySettingRepository) GetValue(key string) (string, error) {
	var v string
	err := r.conn.do(func(s *memoryState) error {
		v = s.settings[key]
		return nil
	})
	return v, err
}

func (r *memorySettingRepository) SetValue(key, value string) error {
	return r.conn.do(func(s *memoryState) error {
		s.settings[key] = value
		return nil
	})
}
