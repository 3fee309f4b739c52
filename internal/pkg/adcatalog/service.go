package adcatalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

const retryAttempts = 3

// Decision is a moderator's verdict on a pending ad.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// SweepResult reports what RefreshStatuses changed.
type SweepResult struct {
	Expired      []uint
	SpendRollups int64
}

// Service manages ads and plans.
type Service struct {
	repos    *repository.Repositories
	products catalog.ProductCatalog
	clock    clock.Clock
	validate *validator.Validate
}

// NewService creates an ad catalog service.
func NewService(repos *repository.Repositories, products catalog.ProductCatalog, clk clock.Clock) *Service {
	return &Service{
		repos:    repos,
		products: products,
		clock:    clk,
		validate: validator.New(),
	}
}

// Get returns an ad by id.
func (s *Service) Get(ctx context.Context, adID uint) (*models.Ad, error) {
	return s.repos.Ad.GetByID(ctx, adID)
}

// ListBySeller returns a seller's ads, newest first.
func (s *Service) ListBySeller(ctx context.Context, sellerID uint) ([]models.Ad, error) {
	return s.repos.Ad.ListBySeller(ctx, sellerID)
}

// CreateAd validates spec and stores a pending, inactive ad. Plans that
// capture at creation are paid from the wallet in the same transaction; an
// unaffordable plan creates nothing and returns an error matching
// aderrors.ErrInsufficientFunds.
func (s *Service) CreateAd(ctx context.Context, spec AdSpec) (uint, error) {
	today := clock.Today(s.clock)
	if err := s.validate.Struct(spec); err != nil {
		return 0, aderrors.FromValidator(err)
	}
	if err := spec.checkShape(today); err != nil {
		return 0, err
	}
	if err := s.checkProduct(ctx, &spec); err != nil {
		return 0, err
	}

	ad := &models.Ad{
		SellerID:       spec.SellerID,
		Type:           spec.Type,
		ProductID:      spec.ProductID,
		Tier:           spec.Tier,
		ImageURL:       spec.ImageURL,
		LinkURL:        spec.LinkURL,
		StartDate:      clock.DateOf(spec.StartDate),
		BidAmount:      spec.BidAmount,
		ApprovalStatus: models.ApprovalPending,
		Status:         models.AdStatusInactive,
	}

	var plan *models.AdCostPlan
	if spec.PlanID != nil && *spec.PlanID != 0 {
		var err error
		plan, err = s.planFor(ctx, *spec.PlanID, &spec)
		if err != nil {
			return 0, err
		}
		ad.PlanID = &plan.ID
		ad.BillingMode = models.BillingModePlan
		ad.EndDate = ad.StartDate.AddDate(0, 0, plan.DurationDays-1)
		if ad.BidAmount.IsZero() {
			ad.BidAmount = plan.DailyValue()
		}
	} else {
		ad.BillingMode = spec.BillingMode
		ad.EndDate = clock.DateOf(spec.EndDate)
		ad.Rate = spec.Rate
		ad.DailyBudget = spec.DailyBudget
		ad.TotalClicks = spec.TotalClicks
		ad.RemainingClicks = spec.TotalClicks
		if ad.BidAmount.IsZero() {
			ad.BidAmount = spec.Rate
		}
	}

	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Ad.Create(ctx, ad); err != nil {
			return err
		}
		if plan == nil || !plan.CaptureAtCreation {
			return nil
		}
		if err := capturePlan(ctx, tx, ad, plan.Price); err != nil {
			return err
		}
		return tx.Ad.Save(ctx, ad)
	})
	if err != nil {
		return 0, err
	}
	log.Infof("[AdCatalog] Created ad %d (%s, %s) for seller %d", ad.ID, ad.Type, ad.BillingMode, ad.SellerID)
	return ad.ID, nil
}

func (s *Service) checkProduct(ctx context.Context, spec *AdSpec) error {
	if spec.ProductID == nil || *spec.ProductID == 0 {
		return nil
	}
	owner, err := s.products.SellerIDForProduct(ctx, *spec.ProductID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return aderrors.Invalid("product_id", "unknown product")
	}
	if err != nil {
		return err
	}
	if owner != spec.SellerID {
		return aderrors.Invalid("product_id", "product belongs to another seller")
	}
	if spec.Type != models.AdTypeSponsoredProduct {
		return nil
	}
	ok, err := s.products.IsProductApprovedAndActive(ctx, *spec.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		return aderrors.Invalid("product_id", "product is not approved and active")
	}
	return nil
}

func (s *Service) planFor(ctx context.Context, planID uint, spec *AdSpec) (*models.AdCostPlan, error) {
	plan, err := s.repos.AdPlan.GetByID(ctx, planID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, aderrors.Invalid("plan_id", "unknown plan")
	}
	if err != nil {
		return nil, err
	}
	ve := &aderrors.ValidationError{}
	if !plan.IsActive {
		ve.Add("plan_id", "plan is no longer offered")
	}
	if plan.AdType != spec.Type {
		ve.Add("plan_id", "plan is for "+plan.AdType+" ads")
	}
	if plan.Tier != 0 && plan.Tier != spec.Tier {
		ve.Add("tier", fmt.Sprintf("plan is for tier %d", plan.Tier))
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}
	return plan, nil
}

func capturePlan(ctx context.Context, tx *repository.Repositories, ad *models.Ad, price decimal.Decimal) error {
	if price.IsPositive() {
		_, err := wallet.DebitTx(ctx, tx, wallet.Entry{
			SellerID: ad.SellerID,
			Amount:   price,
			Reason:   fmt.Sprintf("plan purchase for ad %d", ad.ID),
			AdID:     &ad.ID,
		})
		if err != nil {
			return err
		}
	}
	ad.IsPaid = true
	return nil
}

// Apply loads the ad under a row lock, applies ev and saves it.
func (s *Service) Apply(ctx context.Context, adID uint, ev Event) (*models.Ad, error) {
	var out *models.Ad
	err := aderrors.Retry(retryAttempts, func() error {
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			ad, err := tx.Ad.GetForUpdate(ctx, adID)
			if err != nil {
				return err
			}
			if err := Transition(ad, ev, s.clock.Now()); err != nil {
				return err
			}
			out = ad
			return tx.Ad.Save(ctx, ad)
		})
	})
	return out, err
}

// Moderate approves or rejects a pending ad. Rejection requires a reason,
// which is appended to the ad's notes.
func (s *Service) Moderate(ctx context.Context, adID uint, decision Decision, reason string) (*models.Ad, error) {
	var ev Event
	switch decision {
	case DecisionApprove:
		ev = ModeratorApprove(reason)
	case DecisionReject:
		ev = ModeratorReject(reason)
	default:
		return nil, aderrors.Invalid("decision", "must be approve or reject")
	}
	ad, err := s.Apply(ctx, adID, ev)
	if err != nil {
		return nil, err
	}
	log.Infof("[AdCatalog] Ad %d moderated: %s", adID, decision)
	return ad, nil
}

// Activate revalidates an approved ad and makes it active. Failures are
// *aderrors.EligibilityError values naming the reason. A plan whose payment
// was deferred is captured here.
func (s *Service) Activate(ctx context.Context, adID uint) (*models.Ad, error) {
	var out *models.Ad
	err := aderrors.Retry(retryAttempts, func() error {
		return s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			ad, err := tx.Ad.GetForUpdate(ctx, adID)
			if err != nil {
				return err
			}
			out = ad
			if ad.Status == models.AdStatusActive && !ad.AutoPaused {
				return nil
			}
			now := s.clock.Now()
			if err := CheckActivatable(ad, clock.DateOf(now)); err != nil {
				return err
			}
			if err := s.ensureFunded(ctx, tx, ad, now); err != nil {
				return err
			}
			if err := Transition(ad, SellerActivate(), now); err != nil {
				return err
			}
			return tx.Ad.Save(ctx, ad)
		})
	})
	if err != nil {
		return nil, err
	}
	log.Infof("[AdCatalog] Ad %d activated", adID)
	return out, nil
}

// ensureFunded captures deferred plan payments, and for metered ads requires
// the wallet to cover at least one chargeable event.
func (s *Service) ensureFunded(ctx context.Context, tx *repository.Repositories, ad *models.Ad, now time.Time) error {
	if ad.BillingMode == models.BillingModePlan {
		if ad.IsPaid {
			return nil
		}
		price := decimal.Zero
		if ad.PlanID != nil {
			plan, err := tx.AdPlan.GetByID(ctx, *ad.PlanID)
			if err != nil {
				return err
			}
			price = plan.Price
		}
		if err := capturePlan(ctx, tx, ad, price); err != nil {
			if errors.Is(err, aderrors.ErrInsufficientFunds) {
				return aderrors.NotEligible(ad.ID, aderrors.ReasonInsufficientFunds)
			}
			return err
		}
		return nil
	}

	if ad.BillingMode == models.BillingModeDailyBudget {
		if ad.DailySpendOn(clock.DateOf(now)).Add(ad.Rate).GreaterThan(ad.DailyBudget) {
			return aderrors.NotEligible(ad.ID, aderrors.ReasonNoRemainingBudget)
		}
	}
	w, err := tx.Wallet.GetBySeller(ctx, ad.SellerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if w == nil || w.Balance.LessThan(ad.Rate) {
		return aderrors.NotEligible(ad.ID, aderrors.ReasonInsufficientFunds)
	}
	return nil
}

// Deactivate is the seller's manual pause.
func (s *Service) Deactivate(ctx context.Context, adID uint) (*models.Ad, error) {
	return s.Apply(ctx, adID, SellerDeactivate())
}

// CorrectDates moves the ad's window. It is the only way out of expired and
// the way a rejected ad is resubmitted for moderation.
func (s *Service) CorrectDates(ctx context.Context, adID uint, start, end time.Time) (*models.Ad, error) {
	return s.Apply(ctx, adID, DatesCorrected(start, end))
}

// Suspend applies a fraud suspension with an auto-generated note.
func (s *Service) Suspend(ctx context.Context, adID uint, note string) (*models.Ad, error) {
	ad, err := s.Apply(ctx, adID, FraudSuspend(note))
	if err != nil {
		return nil, err
	}
	log.Warnf("[AdCatalog] Ad %d suspended: %s", adID, note)
	return ad, nil
}

// RefreshStatuses expires ads whose end date has passed and rolls stale daily
// spend counters. It never activates anything and is safe to run repeatedly.
func (s *Service) RefreshStatuses(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	today := clock.Today(s.clock)

	ads, err := s.repos.Ad.ListExpirable(ctx, today)
	if err != nil {
		return res, fmt.Errorf("list expirable ads: %w", err)
	}
	for _, candidate := range ads {
		_, err := s.Apply(ctx, candidate.ID, Expired())
		if errors.Is(err, ErrIllegalTransition) {
			// dates were corrected since the listing
			continue
		}
		if err != nil {
			return res, fmt.Errorf("expire ad %d: %w", candidate.ID, err)
		}
		res.Expired = append(res.Expired, candidate.ID)
	}

	n, err := s.repos.Ad.ResetDailySpend(ctx, today, 0)
	if err != nil {
		return res, fmt.Errorf("reset daily spend: %w", err)
	}
	res.SpendRollups = n

	if len(res.Expired) > 0 {
		log.Infof("[AdCatalog] Sweep expired %d ads", len(res.Expired))
	}
	return res, nil
}

// Plans returns the active cost plans, optionally for one ad type.
func (s *Service) Plans(ctx context.Context, adType string) ([]models.AdCostPlan, error) {
	return s.repos.AdPlan.ListActive(ctx, adType)
}

// CreatePlan validates and stores a cost plan.
func (s *Service) CreatePlan(ctx context.Context, plan *models.AdCostPlan) error {
	if err := s.validate.Struct(plan); err != nil {
		return aderrors.FromValidator(err)
	}
	if !plan.Price.IsPositive() {
		return aderrors.Invalid("price", "must be greater than zero")
	}
	if plan.AdType == models.AdTypeSponsoredProduct && plan.Tier != 0 {
		return aderrors.Invalid("tier", "is only used by banner plans")
	}
	plan.ID = 0
	return s.repos.AdPlan.Create(ctx, plan)
}
