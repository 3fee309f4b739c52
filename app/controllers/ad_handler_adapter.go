package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelMart/internal/pkg/adservice"
	"github.com/ManuelReschke/PixelMart/internal/pkg/jobqueue"
)

// Global controller instances
var (
	adController      *AdController
	adminAdController *AdminAdController
	paymentController *PaymentWebhookController
)

// InitializeAdControllers wires the global controllers used by the router.
func InitializeAdControllers(svc *adservice.Service, jobs *jobqueue.Manager) {
	adController = NewAdController(svc)
	adminAdController = NewAdminAdController(svc, jobs)
}

// InitializePaymentWebhookController wires the payment callback handler.
func InitializePaymentWebhookController(svc *adservice.Service, secret string) {
	paymentController = NewPaymentWebhookController(svc, secret)
}

// GetAdController returns the global ad controller instance
func GetAdController() *AdController {
	return adController
}

// GetAdminAdController returns the global admin controller instance
func GetAdminAdController() *AdminAdController {
	return adminAdController
}

// Adapter functions for the router

func HandleSelectBanner(c *fiber.Ctx) error    { return GetAdController().HandleSelectBanner(c) }
func HandleInsertSponsored(c *fiber.Ctx) error { return GetAdController().HandleInsertSponsored(c) }
func HandleRecordView(c *fiber.Ctx) error      { return GetAdController().HandleRecordView(c) }
func HandleRecordClick(c *fiber.Ctx) error     { return GetAdController().HandleRecordClick(c) }
func HandleCanShow(c *fiber.Ctx) error         { return GetAdController().HandleCanShow(c) }
func HandleCreateAd(c *fiber.Ctx) error        { return GetAdController().HandleCreateAd(c) }
func HandleGetAd(c *fiber.Ctx) error           { return GetAdController().HandleGetAd(c) }
func HandleListSellerAds(c *fiber.Ctx) error   { return GetAdController().HandleListSellerAds(c) }
func HandleActivateAd(c *fiber.Ctx) error      { return GetAdController().HandleActivate(c) }
func HandleDeactivateAd(c *fiber.Ctx) error    { return GetAdController().HandleDeactivate(c) }
func HandleResumeAd(c *fiber.Ctx) error        { return GetAdController().HandleResume(c) }
func HandleCorrectDates(c *fiber.Ctx) error    { return GetAdController().HandleCorrectDates(c) }
func HandleAdReport(c *fiber.Ctx) error        { return GetAdController().HandleReport(c) }
func HandleAdPlans(c *fiber.Ctx) error         { return GetAdController().HandlePlans(c) }
func HandleWallet(c *fiber.Ctx) error          { return GetAdController().HandleWallet(c) }
func HandleAdminModerate(c *fiber.Ctx) error   { return GetAdminAdController().HandleModerate(c) }
func HandleAdminCredit(c *fiber.Ctx) error     { return GetAdminAdController().HandleCreditWallet(c) }
func HandleAdminCreatePlan(c *fiber.Ctx) error { return GetAdminAdController().HandleCreatePlan(c) }
func HandleAdminSweep(c *fiber.Ctx) error      { return GetAdminAdController().HandleSweep(c) }
func HandleAdminRunJob(c *fiber.Ctx) error     { return GetAdminAdController().HandleRunJob(c) }

func HandlePaymentWebhook(c *fiber.Ctx) error {
	return paymentController.HandlePaymentWebhook(c)
}
