// Package adservice is the entry point page rendering and interaction
// handlers use. It wires the catalog, fraud, billing, auction and insertion
// engines together and publishes lifecycle events after each commit.
package adservice

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/app/repository"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adbilling"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adevents"
	"github.com/ManuelReschke/PixelMart/internal/pkg/auction"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
	"github.com/ManuelReschke/PixelMart/internal/pkg/fraud"
	"github.com/ManuelReschke/PixelMart/internal/pkg/metrics/admetrics"
	"github.com/ManuelReschke/PixelMart/internal/pkg/sponsored"
	"github.com/ManuelReschke/PixelMart/internal/pkg/wallet"
)

// Deps are the collaborators of the service. Nil optional fields fall back to
// in-process defaults.
type Deps struct {
	Repos    *repository.Repositories
	Products catalog.ProductCatalog
	Clock    clock.Clock

	Windows     fraud.WindowStore
	FraudConfig func() fraud.Config
	Rand        auction.RandSource
	Layout      func() sponsored.Layout
	Publisher   adevents.Publisher
	Metrics     *admetrics.Metrics
}

// Service exposes the ad engine operations.
type Service struct {
	repos     *repository.Repositories
	clock     clock.Clock
	ads       *adcatalog.Service
	wallet    *wallet.Service
	detector  *fraud.Detector
	billing   *adbilling.Ledger
	auction   *auction.Engine
	sponsored *sponsored.Engine
	publisher adevents.Publisher
	metrics   *admetrics.Metrics
}

// New wires the engines.
func New(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.SystemClock{}
	}
	if d.Windows == nil {
		d.Windows = fraud.NewMemoryWindowStore()
	}
	if d.FraudConfig == nil {
		d.FraudConfig = func() fraud.Config { return fraud.ConfigFromSettings(models.GetAdSettings()) }
	}
	if d.Publisher == nil {
		d.Publisher = adevents.NoopPublisher{}
	}
	if d.Metrics == nil {
		d.Metrics = admetrics.Default()
	}

	ads := adcatalog.NewService(d.Repos, d.Products, d.Clock)
	detector := fraud.NewDetector(d.Windows, d.FraudConfig)
	auctions := auction.NewEngine(d.Repos, d.Clock, d.Rand)
	return &Service{
		repos:     d.Repos,
		clock:     d.Clock,
		ads:       ads,
		wallet:    wallet.NewService(d.Repos),
		detector:  detector,
		billing:   adbilling.NewLedger(d.Repos, detector, ads, d.Clock),
		auction:   auctions,
		sponsored: sponsored.NewEngine(auctions, d.Products, d.Layout),
		publisher: d.Publisher,
		metrics:   d.Metrics,
	}
}

// SelectBannerForSlot returns the lottery winner for tier, or nil when the
// slot stays empty.
func (s *Service) SelectBannerForSlot(ctx context.Context, tier int, slot auction.SlotContext) (*models.Ad, error) {
	ad, err := s.auction.SelectBannerForSlot(ctx, tier, slot)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveAuction(strconv.Itoa(tier), ad != nil)
	return ad, nil
}

// InsertSponsored splices sponsored products into organic results.
func (s *Service) InsertSponsored(ctx context.Context, organic []sponsored.Result, search sponsored.SearchContext) ([]sponsored.Result, error) {
	out, err := s.sponsored.InsertSponsored(ctx, organic, search)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveSponsored(len(out) - len(organic))
	return out, nil
}

// RecordView bills or counts an impression.
func (s *Service) RecordView(ctx context.Context, adID uint, ip string) (adbilling.ChargeResult, error) {
	res, err := s.billing.ChargeImpression(ctx, adID, ip)
	return s.afterCharge(ctx, res, err)
}

// RecordClick bills or counts a click.
func (s *Service) RecordClick(ctx context.Context, adID uint, ip string) (adbilling.ChargeResult, error) {
	res, err := s.billing.ChargeClick(ctx, adID, ip)
	return s.afterCharge(ctx, res, err)
}

func (s *Service) afterCharge(ctx context.Context, res adbilling.ChargeResult, err error) (adbilling.ChargeResult, error) {
	if err != nil {
		return res, err
	}
	s.metrics.ObserveEvent(res.Kind, res.Outcome, res.Charged, res.FraudScore, res.Screened)
	for _, kind := range res.Transitions {
		s.metrics.ObserveTransition(string(kind))
		key := routingKey(kind)
		if key == "" {
			continue
		}
		s.publish(ctx, adevents.Event{
			RoutingKey: key,
			AdID:       res.AdID,
			SellerID:   res.SellerID,
			Note:       string(res.Reason),
		})
	}
	return res, nil
}

// CanShowAd reports whether the ad may render now and why not.
func (s *Service) CanShowAd(ctx context.Context, adID uint) (adbilling.ShowDecision, error) {
	return s.billing.CanShowAd(ctx, adID)
}

// CreateAd validates and stores a pending ad.
func (s *Service) CreateAd(ctx context.Context, spec adcatalog.AdSpec) (uint, error) {
	return s.ads.CreateAd(ctx, spec)
}

// GetAd returns one ad.
func (s *Service) GetAd(ctx context.Context, adID uint) (*models.Ad, error) {
	return s.ads.Get(ctx, adID)
}

// ListSellerAds returns a seller's ads.
func (s *Service) ListSellerAds(ctx context.Context, sellerID uint) ([]models.Ad, error) {
	return s.ads.ListBySeller(ctx, sellerID)
}

// ModerateAd approves or rejects an ad.
func (s *Service) ModerateAd(ctx context.Context, adID uint, decision adcatalog.Decision, reason string) (*models.Ad, error) {
	ad, err := s.ads.Moderate(ctx, adID, decision, reason)
	if err != nil {
		return nil, err
	}
	if decision == adcatalog.DecisionApprove {
		s.metrics.ObserveTransition(string(adcatalog.EventModeratorApprove))
	} else {
		s.metrics.ObserveTransition(string(adcatalog.EventModeratorReject))
	}
	s.publishAd(ctx, adevents.RoutingModerated, ad, reason)
	return ad, nil
}

// ActivateAd is the seller's activation request.
func (s *Service) ActivateAd(ctx context.Context, adID uint) (*models.Ad, error) {
	ad, err := s.ads.Activate(ctx, adID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(adcatalog.EventSellerActivate))
	s.publishAd(ctx, adevents.RoutingActivated, ad, "")
	return ad, nil
}

// DeactivateAd is the seller's manual pause.
func (s *Service) DeactivateAd(ctx context.Context, adID uint) (*models.Ad, error) {
	ad, err := s.ads.Deactivate(ctx, adID)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(adcatalog.EventSellerDeactivate))
	return ad, nil
}

// CorrectDates moves an ad's date window.
func (s *Service) CorrectDates(ctx context.Context, adID uint, start, end time.Time) (*models.Ad, error) {
	ad, err := s.ads.CorrectDates(ctx, adID, start, end)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(adcatalog.EventDatesCorrected))
	return ad, nil
}

// ResumeAd clears an auto-pause when the seller can pay again.
func (s *Service) ResumeAd(ctx context.Context, adID uint) (adbilling.ResumeResult, error) {
	res, err := s.billing.ResumeAd(ctx, adID)
	if err != nil || !res.Resumed {
		return res, err
	}
	s.metrics.ObserveTransition(string(adcatalog.EventResume))
	if ad, err := s.ads.Get(ctx, adID); err == nil {
		s.publishAd(ctx, adevents.RoutingResumed, ad, "")
	}
	return res, nil
}

// Plans lists active cost plans.
func (s *Service) Plans(ctx context.Context, adType string) ([]models.AdCostPlan, error) {
	return s.ads.Plans(ctx, adType)
}

// CreatePlan adds a cost plan.
func (s *Service) CreatePlan(ctx context.Context, plan *models.AdCostPlan) error {
	return s.ads.CreatePlan(ctx, plan)
}

// CreditWallet tops up a seller's wallet and returns the new balance.
func (s *Service) CreditWallet(ctx context.Context, sellerID uint, amount decimal.Decimal, reason, reference string) (decimal.Decimal, error) {
	return s.wallet.Credit(ctx, wallet.Entry{SellerID: sellerID, Amount: amount, Reason: reason, Reference: reference})
}

// Balance returns a seller's wallet balance.
func (s *Service) Balance(ctx context.Context, sellerID uint) (decimal.Decimal, error) {
	return s.wallet.GetBalance(ctx, sellerID)
}

// Transactions returns a seller's latest wallet records.
func (s *Service) Transactions(ctx context.Context, sellerID uint, limit int) ([]models.WalletTransaction, error) {
	return s.wallet.Transactions(ctx, sellerID, limit)
}

// Today returns the current calendar day in UTC.
func (s *Service) Today() time.Time {
	return clock.Today(s.clock)
}

// Report aggregates an ad's events per day for [from, to).
func (s *Service) Report(ctx context.Context, adID uint, from, to time.Time) ([]models.AdDailyReport, error) {
	return s.repos.AdEvent.DailyReport(ctx, adID, from, to)
}

// RunSweep expires ads past their end date and rolls daily spend.
func (s *Service) RunSweep(ctx context.Context) (adcatalog.SweepResult, error) {
	res, err := s.ads.RefreshStatuses(ctx)
	s.metrics.ObserveJob("sweep", err)
	for _, id := range res.Expired {
		s.metrics.ObserveTransition(string(adcatalog.EventExpired))
		if ad, getErr := s.ads.Get(ctx, id); getErr == nil {
			s.publishAd(ctx, adevents.RoutingExpired, ad, "")
		}
	}
	return res, err
}

// CleanupFraudWindows prunes idle fraud windows.
func (s *Service) CleanupFraudWindows(ctx context.Context) (int, error) {
	n, err := s.detector.Cleanup(ctx, s.clock.Now())
	s.metrics.ObserveJob("fraud_cleanup", err)
	return n, err
}

// ObserveJob records the result of a background job run.
func (s *Service) ObserveJob(job string, err error) {
	s.metrics.ObserveJob(job, err)
}

func (s *Service) publishAd(ctx context.Context, key string, ad *models.Ad, note string) {
	s.publish(ctx, adevents.Event{
		RoutingKey: key,
		AdID:       ad.ID,
		SellerID:   ad.SellerID,
		Status:     ad.Status,
		Approval:   ad.ApprovalStatus,
		Note:       note,
	})
}

// publish is best effort; the state change already committed.
func (s *Service) publish(ctx context.Context, ev adevents.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.clock.Now()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warnf("[AdService] Failed to publish %s for ad %d: %v", ev.RoutingKey, ev.AdID, err)
	}
}

func routingKey(kind adcatalog.EventKind) string {
	switch kind {
	case adcatalog.EventFraudSuspend:
		return adevents.RoutingSuspended
	case adcatalog.EventAutoPause:
		return adevents.RoutingAutoPaused
	case adcatalog.EventExhausted:
		return adevents.RoutingExhausted
	}
	return ""
}
