package aderrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Reason is a machine readable code describing why an ad cannot be shown,
// activated or charged. Callers branch on it.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonNotFound           Reason = "not_found"
	ReasonNotApproved        Reason = "not_approved"
	ReasonInactive           Reason = "inactive"
	ReasonSuspended          Reason = "suspended"
	ReasonExpired            Reason = "expired"
	ReasonAutoPaused         Reason = "auto_paused"
	ReasonWindowClosed       Reason = "window_closed"
	ReasonNotPaid            Reason = "not_paid"
	ReasonNoRemainingBudget  Reason = "no_remaining_budget"
	ReasonDailyBudgetReached Reason = "daily_budget_reached"
	ReasonInsufficientFunds  Reason = "insufficient_funds"
	ReasonDuplicate          Reason = "duplicate"
	ReasonFraud              Reason = "fraud"
	ReasonNotPaused          Reason = "not_paused"
)

var (
	// ErrNotEligible is returned (wrapped in an EligibilityError) when an ad
	// fails the approval, status, window or payment invariant.
	ErrNotEligible = errors.New("ad not eligible")
	// ErrInsufficientFunds means the wallet cannot cover a charge. No state
	// was changed.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrConcurrencyConflict means an atomic update lost a race or could not
	// acquire its row lock in time. Retryable.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
)

// EligibilityError carries the specific reason an ad failed an eligibility
// check. It matches ErrNotEligible with errors.Is, and ErrInsufficientFunds
// when the reason is ReasonInsufficientFunds.
type EligibilityError struct {
	AdID   uint
	Reason Reason
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("ad %d not eligible: %s", e.AdID, e.Reason)
}

func (e *EligibilityError) Is(target error) bool {
	if target == ErrNotEligible {
		return true
	}
	return target == ErrInsufficientFunds && e.Reason == ReasonInsufficientFunds
}

// NotEligible builds an EligibilityError.
func NotEligible(adID uint, reason Reason) error {
	return &EligibilityError{AdID: adID, Reason: reason}
}

// ReasonOf extracts the eligibility reason from err, or ReasonNone.
func ReasonOf(err error) Reason {
	var ee *EligibilityError
	if errors.As(err, &ee) {
		return ee.Reason
	}
	if errors.Is(err, ErrInsufficientFunds) {
		return ReasonInsufficientFunds
	}
	return ReasonNone
}

// ValidationError describes a malformed input. It is fatal for the request
// and never retried.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field error and returns the receiver for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
	return e
}

// OrNil returns nil when no field error was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field ValidationError.
func Invalid(field, msg string) error {
	return (&ValidationError{}).Add(field, msg)
}

// FromValidator converts go-playground validator errors into a ValidationError.
// Other errors are returned unchanged.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		msg := "failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		ve.Add(strings.ToLower(fe.Field()), msg)
	}
	return ve
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// Retry runs fn up to attempts times while it fails with a retryable error.
func Retry(attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); !IsRetryable(err) {
			return err
		}
	}
	return err
}
