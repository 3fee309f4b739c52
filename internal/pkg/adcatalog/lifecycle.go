// Package adcatalog owns the ad record, its approval/activity state machine
// and the cost plan catalog.
package adcatalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/clock"
)

// ErrIllegalTransition is returned when an event does not apply to the ad's
// current state.
var ErrIllegalTransition = errors.New("illegal ad state transition")

// EventKind tags a lifecycle event.
type EventKind string

const (
	EventModeratorApprove EventKind = "moderator_approve"
	EventModeratorReject  EventKind = "moderator_reject"
	EventSellerActivate   EventKind = "seller_activate"
	EventSellerDeactivate EventKind = "seller_deactivate"
	EventExhausted        EventKind = "exhausted"
	EventFraudSuspend     EventKind = "fraud_suspend"
	EventAutoPause        EventKind = "auto_pause"
	EventResume           EventKind = "resume"
	EventExpired          EventKind = "expired"
	EventDatesCorrected   EventKind = "dates_corrected"
)

// Event is the input of Transition. Note carries the rejection reason or the
// suspension rationale; Start and End are only read for EventDatesCorrected.
type Event struct {
	Kind  EventKind
	Note  string
	Start time.Time
	End   time.Time
}

func ModeratorApprove(note string) Event { return Event{Kind: EventModeratorApprove, Note: note} }
func ModeratorReject(reason string) Event {
	return Event{Kind: EventModeratorReject, Note: reason}
}
func SellerActivate() Event          { return Event{Kind: EventSellerActivate} }
func SellerDeactivate() Event        { return Event{Kind: EventSellerDeactivate} }
func Exhausted() Event               { return Event{Kind: EventExhausted} }
func FraudSuspend(note string) Event { return Event{Kind: EventFraudSuspend, Note: note} }
func AutoPause(note string) Event    { return Event{Kind: EventAutoPause, Note: note} }
func Resume() Event                  { return Event{Kind: EventResume} }
func Expired() Event                 { return Event{Kind: EventExpired} }
func DatesCorrected(start, end time.Time) Event {
	return Event{Kind: EventDatesCorrected, Start: start, End: end}
}

func illegal(ad *models.Ad, ev Event) error {
	return fmt.Errorf("%w: %s on ad %d (%s/%s)", ErrIllegalTransition, ev.Kind, ad.ID, ad.ApprovalStatus, ad.Status)
}

// Transition applies ev to ad in place. It is the only function that writes
// ApprovalStatus, Status or AutoPaused. On error ad is left unchanged.
func Transition(ad *models.Ad, ev Event, now time.Time) error {
	today := clock.DateOf(now)

	switch ev.Kind {
	case EventModeratorApprove:
		switch {
		case ad.ApprovalStatus == models.ApprovalPending:
		case ad.ApprovalStatus == models.ApprovalApproved && ad.Status == models.AdStatusSuspended:
			// reinstated after a fraud suspension
		default:
			return illegal(ad, ev)
		}
		ad.ApprovalStatus = models.ApprovalApproved
		ad.Status = models.AdStatusInactive
		ad.AppendNote(now, prefixed("approved", ev.Note))

	case EventModeratorReject:
		if strings.TrimSpace(ev.Note) == "" {
			return aderrors.Invalid("reason", "is required when rejecting")
		}
		if ad.ApprovalStatus == models.ApprovalRejected || ad.Status == models.AdStatusExpired {
			return illegal(ad, ev)
		}
		ad.ApprovalStatus = models.ApprovalRejected
		ad.Status = models.AdStatusSuspended
		ad.AppendNote(now, "rejected: "+strings.TrimSpace(ev.Note))

	case EventSellerActivate:
		if ad.Status == models.AdStatusActive && !ad.AutoPaused {
			return nil
		}
		if err := CheckActivatable(ad, today); err != nil {
			return err
		}
		ad.Status = models.AdStatusActive
		ad.AutoPaused = false

	case EventSellerDeactivate:
		switch ad.Status {
		case models.AdStatusInactive:
			return nil
		case models.AdStatusActive:
			ad.Status = models.AdStatusInactive
		default:
			return illegal(ad, ev)
		}

	case EventExhausted:
		if ad.Status != models.AdStatusActive {
			return illegal(ad, ev)
		}
		ad.Status = models.AdStatusInactive
		ad.AppendNote(now, "deactivated: purchased clicks exhausted")

	case EventFraudSuspend:
		if ad.Status == models.AdStatusExpired || ad.Status == models.AdStatusSuspended {
			return illegal(ad, ev)
		}
		ad.Status = models.AdStatusSuspended
		ad.AppendNote(now, prefixed("auto-suspended", ev.Note))

	case EventAutoPause:
		if ad.Status != models.AdStatusActive {
			return illegal(ad, ev)
		}
		ad.AutoPaused = true
		ad.Status = models.AdStatusInactive
		ad.AppendNote(now, prefixed("auto-paused", ev.Note))

	case EventResume:
		if !ad.AutoPaused {
			return aderrors.NotEligible(ad.ID, aderrors.ReasonNotPaused)
		}
		if ad.ApprovalStatus != models.ApprovalApproved {
			return aderrors.NotEligible(ad.ID, aderrors.ReasonNotApproved)
		}
		if ad.Status != models.AdStatusInactive {
			return illegal(ad, ev)
		}
		if !ad.InWindow(today) {
			return aderrors.NotEligible(ad.ID, aderrors.ReasonWindowClosed)
		}
		ad.AutoPaused = false
		ad.Status = models.AdStatusActive
		ad.AppendNote(now, "resumed")

	case EventExpired:
		if ad.Status == models.AdStatusExpired || !isPast(ad.EndDate, today) {
			return illegal(ad, ev)
		}
		ad.Status = models.AdStatusExpired
		ad.AppendNote(now, "expired: end date "+ad.EndDate.Format("2006-01-02")+" passed")

	case EventDatesCorrected:
		start, end := clock.DateOf(ev.Start), clock.DateOf(ev.End)
		ve := &aderrors.ValidationError{}
		if ev.Start.IsZero() || ev.End.IsZero() {
			ve.Add("dates", "start and end are required")
		} else if end.Before(start) {
			ve.Add("end_date", "must not be before start_date")
		} else if isPast(end, today) {
			ve.Add("end_date", "must not be in the past")
		}
		if err := ve.OrNil(); err != nil {
			return err
		}
		ad.StartDate, ad.EndDate = start, end
		switch {
		case ad.ApprovalStatus == models.ApprovalRejected:
			// resubmission goes back through moderation
			ad.ApprovalStatus = models.ApprovalPending
			ad.Status = models.AdStatusInactive
		case ad.Status == models.AdStatusExpired:
			ad.Status = models.AdStatusInactive
		}
		ad.AppendNote(now, "dates corrected: "+start.Format("2006-01-02")+" to "+end.Format("2006-01-02"))

	default:
		return fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, ev.Kind)
	}
	return nil
}

// CheckActivatable validates everything activation needs except wallet funds.
func CheckActivatable(ad *models.Ad, today time.Time) error {
	switch {
	case ad.ApprovalStatus != models.ApprovalApproved:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNotApproved)
	case ad.Status == models.AdStatusExpired:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonExpired)
	case ad.Status == models.AdStatusSuspended:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonSuspended)
	case isPast(ad.EndDate, today):
		return aderrors.NotEligible(ad.ID, aderrors.ReasonWindowClosed)
	case ad.IsClickCapped() && ad.RemainingClicks <= 0:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNoRemainingBudget)
	case ad.BillingMode == models.BillingModeDailyBudget && !ad.DailyBudget.IsPositive():
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNoRemainingBudget)
	}
	return nil
}

// IsServable checks the stored eligibility invariant: approved, active, not
// auto-paused, inside the date window, paid (plan ads) and with clicks left
// (click bundles). Wallet affordability is checked by billing.
func IsServable(ad *models.Ad, today time.Time) error {
	switch {
	case ad.ApprovalStatus != models.ApprovalApproved:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNotApproved)
	case ad.Status == models.AdStatusExpired:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonExpired)
	case ad.Status == models.AdStatusSuspended:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonSuspended)
	case ad.AutoPaused:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonAutoPaused)
	case ad.Status != models.AdStatusActive:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonInactive)
	case !ad.InWindow(today):
		return aderrors.NotEligible(ad.ID, aderrors.ReasonWindowClosed)
	case ad.BillingMode == models.BillingModePlan && !ad.IsPaid:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNotPaid)
	case ad.IsClickCapped() && ad.RemainingClicks <= 0:
		return aderrors.NotEligible(ad.ID, aderrors.ReasonNoRemainingBudget)
	}
	return nil
}

func isPast(date, today time.Time) bool {
	return date.Format("2006-01-02") < today.Format("2006-01-02")
}

func prefixed(prefix, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return prefix
	}
	return prefix + ": " + note
}
