// Package adbilling turns ad events into wallet debits. The eligibility
// re-check, the debit and the counter updates of one event commit together.
package adbilling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/fraud"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

const retryAttempts = 3

// ShowDecision answers whether an ad may be rendered right now.
type ShowDecision struct {
	CanShow bool            `json:"can_show"`
	Reason  aderrors.Reason `json:"reason,omitempty"`
	Balance decimal.Decimal `json:"balance"`
}

// ChargeResult is the structured outcome of one view or click. Blocked and
// ineligible events are results, not errors.
type ChargeResult struct {
	EventID     string                `json:"event_id,omitempty"`
	AdID        uint                  `json:"ad_id"`
	SellerID    uint                  `json:"-"`
	Kind        string                `json:"kind"`
	Outcome     string                `json:"outcome"`
	Charged     decimal.Decimal       `json:"charged"`
	Blocked     bool                  `json:"blocked"`
	Reason      aderrors.Reason       `json:"reason,omitempty"`
	FraudScore  int                   `json:"fraud_score"`
	Screened    bool                  `json:"-"`
	Balance     decimal.Decimal       `json:"-"`
	Transitions []adcatalog.EventKind `json:"-"`
}

// ResumeResult reports whether an auto-paused ad went live again.
type ResumeResult struct {
	Resumed bool            `json:"resumed"`
	Reason  aderrors.Reason `json:"reason,omitempty"`
}

// Suspender applies fraud suspensions. *adcatalog.Service implements it.
type Suspender interface {
	Suspend(ctx context.Context, adID uint, note string) (*models.Ad, error)
}

// Ledger charges ad events against seller wallets.
type Ledger struct {
	repos     *repository.Repositories
	detector  *fraud.Detector
	suspender Suspender
	clock     clock.Clock
}

// NewLedger creates a billing ledger.
func NewLedger(repos *repository.Repositories, detector *fraud.Detector, suspender Suspender, clk clock.Clock) *Ledger {
	return &Ledger{
		repos:     repos,
		detector:  detector,
		suspender: suspender,
		clock:     clk,
	}
}

// CanShowAd checks the eligibility invariant plus affordability of one
// chargeable event at the ad's current rate.
func (l *Ledger) CanShowAd(ctx context.Context, adID uint) (ShowDecision, error) {
	ad, err := l.repos.Ad.GetByID(ctx, adID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ShowDecision{Reason: aderrors.ReasonNotFound}, nil
	}
	if err != nil {
		return ShowDecision{}, err
	}
	balance, err := wallet.NewService(l.repos).GetBalance(ctx, ad.SellerID)
	if err != nil {
		return ShowDecision{}, err
	}
	reason := Affordability(ad, balance, clock.Today(l.clock))
	return ShowDecision{CanShow: reason == aderrors.ReasonNone, Reason: reason, Balance: balance}, nil
}

// Affordability combines IsServable with the wallet and daily budget checks.
func Affordability(ad *models.Ad, balance decimal.Decimal, today time.Time) aderrors.Reason {
	if err := adcatalog.IsServable(ad, today); err != nil {
		return aderrors.ReasonOf(err)
	}
	if !ad.IsMetered() {
		return aderrors.ReasonNone
	}
	if ad.BillingMode == models.BillingModeDailyBudget &&
		ad.DailySpendOn(today).Add(ad.Rate).GreaterThan(ad.DailyBudget) {
		return aderrors.ReasonDailyBudgetReached
	}
	if balance.LessThan(ad.Rate) {
		return aderrors.ReasonInsufficientFunds
	}
	return aderrors.ReasonNone
}

// ChargeImpression records a view and bills it for per-impression ads.
func (l *Ledger) ChargeImpression(ctx context.Context, adID uint, ip string) (ChargeResult, error) {
	return l.charge(ctx, models.EventKindView, adID, ip)
}

// ChargeClick records a click and bills it for per-click and daily-budget ads.
func (l *Ledger) ChargeClick(ctx context.Context, adID uint, ip string) (ChargeResult, error) {
	return l.charge(ctx, models.EventKindClick, adID, ip)
}

func (l *Ledger) charge(ctx context.Context, kind string, adID uint, ip string) (ChargeResult, error) {
	res := ChargeResult{AdID: adID, Kind: kind, Charged: decimal.Zero}

	ad, err := l.repos.Ad.GetByID(ctx, adID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		res.Outcome, res.Blocked, res.Reason = models.OutcomeRejected, true, aderrors.ReasonNotFound
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.SellerID = ad.SellerID
	res.EventID = uuid.NewString()
	now := l.clock.Now()

	// every click is screened so fraud cannot inflate the CTR of plan ads;
	// views only when they are billed
	if kind == models.EventKindClick || ad.ChargesOn(kind) {
		verdict, err := l.detector.Evaluate(ctx, kind, adID, ip, now)
		if err != nil {
			return res, err
		}
		res.FraudScore, res.Screened = verdict.FraudScore, true
		if verdict.Blocked() {
			return l.block(ctx, res, ad, ip, verdict, now)
		}
	}

	err = aderrors.Retry(retryAttempts, func() error {
		return l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			var err error
			res, err = l.chargeTx(ctx, tx, res, ip, now)
			return err
		})
	})
	if err != nil {
		return res, err
	}
	return res, nil
}

func (l *Ledger) block(ctx context.Context, res ChargeResult, ad *models.Ad, ip string, verdict fraud.Verdict, now time.Time) (ChargeResult, error) {
	res.Blocked = true
	if verdict.IsDuplicate && !verdict.IsFraud {
		res.Outcome, res.Reason = models.OutcomeBlockedDuplicate, aderrors.ReasonDuplicate
	} else {
		res.Outcome, res.Reason = models.OutcomeBlockedFraud, aderrors.ReasonFraud
	}
	if err := l.logEvent(ctx, l.repos, res, ip, now); err != nil {
		return res, err
	}

	if verdict.ShouldSuspend {
		note := fraud.SuspendNote(verdict, l.detector.Config())
		_, err := l.suspender.Suspend(ctx, ad.ID, note)
		switch {
		case err == nil:
			res.Transitions = append(res.Transitions, adcatalog.EventFraudSuspend)
		case errors.Is(err, adcatalog.ErrIllegalTransition):
			// already suspended or expired
		default:
			return res, fmt.Errorf("suspend ad %d: %w", ad.ID, err)
		}
	}
	return res, nil
}

// chargeTx runs inside the billing transaction with the ad row locked.
// Outcomes that must still be logged return a nil error so they commit.
func (l *Ledger) chargeTx(ctx context.Context, tx *repository.Repositories, res ChargeResult, ip string, now time.Time) (ChargeResult, error) {
	today := clock.DateOf(now)
	res.Transitions = nil
	res.Charged = decimal.Zero

	ad, err := tx.Ad.GetForUpdate(ctx, res.AdID)
	if err != nil {
		return res, err
	}
	if ad.BillingMode == models.BillingModeDailyBudget && !ad.SpendDateIs(today) {
		if _, err := tx.Ad.ResetDailySpend(ctx, today, ad.ID); err != nil {
			return res, err
		}
		ad.CurrentDailySpend = decimal.Zero
		ad.SpendDate = &today
	}

	if err := adcatalog.IsServable(ad, today); err != nil {
		res.Outcome, res.Blocked, res.Reason = models.OutcomeRejected, true, aderrors.ReasonOf(err)
		return res, l.logEvent(ctx, tx, res, ip, now)
	}

	delta := repository.CounterDelta{}
	if res.Kind == models.EventKindView {
		delta.Reach = 1
	} else {
		delta.Clicks = 1
	}

	if !ad.ChargesOn(res.Kind) {
		if err := tx.Ad.ApplyCounters(ctx, ad.ID, delta); err != nil {
			return res, err
		}
		res.Outcome = models.OutcomeCounted
		return res, l.logEvent(ctx, tx, res, ip, now)
	}

	amount := ad.Rate
	if ad.BillingMode == models.BillingModeDailyBudget && ad.CurrentDailySpend.Add(amount).GreaterThan(ad.DailyBudget) {
		res.Outcome, res.Blocked, res.Reason = models.OutcomeRejected, true, aderrors.ReasonDailyBudgetReached
		return res, l.logEvent(ctx, tx, res, ip, now)
	}

	debit, err := wallet.DebitTx(ctx, tx, wallet.Entry{
		SellerID:  ad.SellerID,
		Amount:    amount,
		Reason:    fmt.Sprintf("%s on ad %d", res.Kind, ad.ID),
		AdID:      &ad.ID,
		Reference: res.EventID,
	})
	res.Balance = debit.NewBalance
	if errors.Is(err, aderrors.ErrInsufficientFunds) {
		note := fmt.Sprintf("insufficient funds (balance %s, rate %s)", debit.NewBalance.StringFixed(2), amount.StringFixed(2))
		if err := adcatalog.Transition(ad, adcatalog.AutoPause(note), now); err != nil {
			return res, err
		}
		if err := tx.Ad.Save(ctx, ad); err != nil {
			return res, err
		}
		res.Transitions = append(res.Transitions, adcatalog.EventAutoPause)
		res.Outcome, res.Blocked, res.Reason = models.OutcomeUnbilled, true, aderrors.ReasonInsufficientFunds
		log.Infof("[Billing] Ad %d auto-paused: %s", ad.ID, note)
		return res, l.logEvent(ctx, tx, res, ip, now)
	}
	if err != nil {
		return res, err
	}

	if ad.IsClickCapped() && res.Kind == models.EventKindClick {
		delta.RemainingClicks = -1
	}
	if ad.BillingMode == models.BillingModeDailyBudget {
		delta.DailySpend = amount
	}
	if err := tx.Ad.ApplyCounters(ctx, ad.ID, delta); err != nil {
		return res, err
	}

	if delta.RemainingClicks != 0 && ad.RemainingClicks+delta.RemainingClicks <= 0 {
		ad.ReachCount += delta.Reach
		ad.ClickCount += delta.Clicks
		ad.RemainingClicks += delta.RemainingClicks
		ad.CurrentDailySpend = ad.CurrentDailySpend.Add(delta.DailySpend)
		if err := adcatalog.Transition(ad, adcatalog.Exhausted(), now); err != nil {
			return res, err
		}
		if err := tx.Ad.Save(ctx, ad); err != nil {
			return res, err
		}
		res.Transitions = append(res.Transitions, adcatalog.EventExhausted)
		log.Infof("[Billing] Ad %d exhausted its click bundle", ad.ID)
	}

	res.Outcome, res.Charged = models.OutcomeCharged, amount
	return res, l.logEvent(ctx, tx, res, ip, now)
}

func (l *Ledger) logEvent(ctx context.Context, repos *repository.Repositories, res ChargeResult, ip string, now time.Time) error {
	return repos.AdEvent.Create(ctx, &models.AdEvent{
		EventID:    res.EventID,
		AdID:       res.AdID,
		SellerID:   res.SellerID,
		Kind:       res.Kind,
		IP:         ip,
		Outcome:    res.Outcome,
		Charged:    res.Charged,
		FraudScore: res.FraudScore,
		Reason:     string(res.Reason),
		OccurredAt: now,
	})
}

// ResumeAd clears an auto-pause when the window and affordability checks of
// CanShowAd pass. Otherwise it changes nothing and reports why.
func (l *Ledger) ResumeAd(ctx context.Context, adID uint) (ResumeResult, error) {
	var res ResumeResult
	err := aderrors.Retry(retryAttempts, func() error {
		return l.repos.Transaction(ctx, func(tx *repository.Repositories) error {
			res = ResumeResult{}
			ad, err := tx.Ad.GetForUpdate(ctx, adID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				res.Reason = aderrors.ReasonNotFound
				return nil
			}
			if err != nil {
				return err
			}
			now := l.clock.Now()
			today := clock.DateOf(now)

			if !ad.AutoPaused {
				res.Reason = aderrors.ReasonNotPaused
				return nil
			}
			// check the ad as it would be once resumed
			candidate := *ad
			candidate.AutoPaused = false
			if candidate.Status == models.AdStatusInactive {
				candidate.Status = models.AdStatusActive
			}
			balance, err := wallet.NewService(tx).GetBalance(ctx, ad.SellerID)
			if err != nil {
				return err
			}
			if reason := Affordability(&candidate, balance, today); reason != aderrors.ReasonNone {
				res.Reason = reason
				return nil
			}
			if err := adcatalog.Transition(ad, adcatalog.Resume(), now); err != nil {
				if reason := aderrors.ReasonOf(err); reason != aderrors.ReasonNone {
					res.Reason = reason
					return nil
				}
				return err
			}
			if err := tx.Ad.Save(ctx, ad); err != nil {
				return err
			}
			res.Resumed = true
			return nil
		})
	})
	if err == nil && res.Resumed {
		log.Infof("[Billing] Ad %d resumed", adID)
	}
	return res, err
}
