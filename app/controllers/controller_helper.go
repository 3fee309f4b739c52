package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/catalog"
)

// GetClientIP determines the client address behind Cloudflare or a reverse
// proxy. IPv4-mapped IPv6 addresses are reported in their IPv4 form.
func GetClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return normalizeIP(ip)
	}

	// 2. X-Forwarded-For, first entry is the original client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return normalizeIP(ip)
		}
	}

	// 3. X-Real-IP set by nginx
	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return normalizeIP(ip)
	}

	return normalizeIP(c.IP())
}

func normalizeIP(ip string) string {
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}

// paramID parses a positive numeric route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		return 0, aderrors.Invalid(name, "must be a positive integer")
	}
	return uint(v), nil
}

// respondError maps service errors onto the JSON error envelope.
func respondError(c *fiber.Ctx, err error) error {
	var ve *aderrors.ValidationError
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": ve.Error(), "fields": ve.Fields})
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, catalog.ErrProductNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": err.Error()})
	case errors.Is(err, adcatalog.ErrIllegalTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "illegal_transition", "message": err.Error()})
	case errors.Is(err, aderrors.ErrNotEligible):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "not_eligible", "reason": aderrors.ReasonOf(err), "message": err.Error()})
	case errors.Is(err, aderrors.ErrInsufficientFunds):
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "insufficient_funds", "reason": aderrors.ReasonInsufficientFunds, "message": err.Error()})
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "duplicate", "message": "Reference already used"})
	case aderrors.IsRetryable(err):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "conflict", "message": "Please retry"})
	default:
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Unexpected error"})
	}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}
