package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adservice"
	"github.com/ManuelReschke/PixelMart/internal/pkg/jobqueue"
)

// AdminAdController serves moderation, wallet top-ups and maintenance jobs.
type AdminAdController struct {
	svc  *adservice.Service
	jobs *jobqueue.Manager
}

// NewAdminAdController creates a new admin controller. jobs may be nil.
func NewAdminAdController(svc *adservice.Service, jobs *jobqueue.Manager) *AdminAdController {
	return &AdminAdController{svc: svc, jobs: jobs}
}

type moderateRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

// HandleModerate approves or rejects an ad.
func (ac *AdminAdController) HandleModerate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req moderateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	decision := adcatalog.Decision(req.Decision)
	if decision != adcatalog.DecisionApprove && decision != adcatalog.DecisionReject {
		return respondError(c, aderrors.Invalid("decision", "must be approve or reject"))
	}

	ad, err := ac.svc.ModerateAd(c.UserContext(), id, decision, req.Reason)
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Ad %d moderated: %s", id, decision)
	return c.JSON(ad)
}

type creditRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference"`
}

// HandleCreditWallet tops up a seller wallet.
func (ac *AdminAdController) HandleCreditWallet(c *fiber.Ctx) error {
	sellerID, err := paramID(c, "seller")
	if err != nil {
		return respondError(c, err)
	}
	var req creditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Reason == "" {
		req.Reason = "admin top-up"
	}

	balance, err := ac.svc.CreditWallet(c.UserContext(), sellerID, req.Amount, req.Reason, req.Reference)
	if err != nil {
		return respondError(c, err)
	}
	log.Infof("[Admin] Credited %s to seller %d", req.Amount.StringFixed(2), sellerID)
	return c.JSON(fiber.Map{"seller_id": sellerID, "balance": balance})
}

// HandleCreatePlan adds an ad cost plan to the catalog.
func (ac *AdminAdController) HandleCreatePlan(c *fiber.Ctx) error {
	var plan models.AdCostPlan
	if err := c.BodyParser(&plan); err != nil {
		return badRequest(c, "invalid request body")
	}
	plan.ID = 0
	if err := ac.svc.CreatePlan(c.UserContext(), &plan); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleSweep runs the lifecycle sweep synchronously and reports what changed.
func (ac *AdminAdController) HandleSweep(c *fiber.Ctx) error {
	res, err := ac.svc.RunSweep(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	expired := res.Expired
	if expired == nil {
		expired = []uint{}
	}
	return c.JSON(fiber.Map{"expired": expired, "spend_rollups": res.SpendRollups})
}

// HandleRunJob triggers one background job out of schedule.
func (ac *AdminAdController) HandleRunJob(c *fiber.Ctx) error {
	if ac.jobs == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Background jobs are disabled"})
	}
	job := c.Params("job")
	switch job {
	case jobqueue.JobSweep, jobqueue.JobFraudCleanup, jobqueue.JobEventArchive:
	default:
		return respondError(c, aderrors.Invalid("job", "unknown job"))
	}
	if err := ac.jobs.RunOnce(c.UserContext(), job); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"job": job, "status": "completed"})
}
