package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/internal/pkg/adservice"
	"github.com/ManuelReschke/PixelMart/internal/pkg/payments"
)

// PaymentWebhookController credits wallets from payment provider callbacks.
type PaymentWebhookController struct {
	svc    *adservice.Service
	secret string
}

func NewPaymentWebhookController(svc *adservice.Service, secret string) *PaymentWebhookController {
	return &PaymentWebhookController{svc: svc, secret: secret}
}

// HandlePaymentWebhook verifies the signature, then credits the seller once
// per provider event. Redeliveries answer 200 so the provider stops retrying.
func (pc *PaymentWebhookController) HandlePaymentWebhook(c *fiber.Ctx) error {
	if pc.secret == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Payment webhook is not configured"})
	}

	payload := c.Body()
	if !payments.VerifySignature(payload, c.Get(payments.SignatureHeader), pc.secret) {
		log.Warnf("[Payments] Rejected webhook with invalid signature from %s", GetClientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ev, err := payments.ParseTopUp(payload)
	if err != nil {
		return respondError(c, err)
	}
	if !ev.Succeeded() {
		return c.JSON(fiber.Map{"status": "ignored", "event_id": ev.EventID})
	}

	balance, err := pc.svc.CreditWallet(c.UserContext(), ev.SellerID, ev.Amount, "payment top-up", ev.Reference())
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		log.Infof("[Payments] Event %s already credited", ev.EventID)
		return c.JSON(fiber.Map{"status": "duplicate", "event_id": ev.EventID})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "credited", "event_id": ev.EventID, "balance": balance})
}
