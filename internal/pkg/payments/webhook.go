// Package payments accepts wallet top-ups confirmed by the payment provider.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Payment-Signature"

// StatusSucceeded is the only status that credits a wallet.
const StatusSucceeded = "succeeded"

// TopUpEvent is the provider's notification about a seller payment.
type TopUpEvent struct {
	EventID  string          `json:"event_id" validate:"required,max=56"`
	SellerID uint            `json:"seller_id" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"omitempty,len=3"`
	Status   string          `json:"status" validate:"required"`
}

// Reference is the wallet ledger reference. It makes redelivered events
// collide on the unique reference column instead of crediting twice.
func (e *TopUpEvent) Reference() string {
	return "payment:" + e.EventID
}

// Succeeded reports whether the payment settled.
func (e *TopUpEvent) Succeeded() bool {
	return e.Status == StatusSucceeded
}

var validate = validator.New()

// ParseTopUp decodes and validates a webhook body.
func ParseTopUp(payload []byte) (*TopUpEvent, error) {
	var ev TopUpEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, aderrors.Invalid("body", fmt.Sprintf("invalid json: %v", err))
	}
	if err := validate.Struct(&ev); err != nil {
		return nil, aderrors.FromValidator(err)
	}
	if ev.Succeeded() && !ev.Amount.IsPositive() {
		return nil, aderrors.Invalid("amount", "must be greater than zero")
	}
	return &ev, nil
}

// VerifySignature checks the hex HMAC-SHA256 in signatureHeader against the
// raw payload. An optional "sha256=" prefix is accepted.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	secret = strings.TrimSpace(secret)
	if sig == "" || secret == "" {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(sig))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig)
}

// Sign returns the header value VerifySignature accepts. Used by tests and
// the local provider simulator.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
