package controllers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PixelMart/internal/pkg/adcatalog"
	"github.com/ManuelReschke/PixelMart/internal/pkg/aderrors"
	"github.com/ManuelReschke/PixelMart/internal/pkg/adservice"
	"github.com/ManuelReschke/PixelMart/internal/pkg/auction"
	"github.com/ManuelReschke/PixelMart/internal/pkg/sponsored"
)

const maxReportDays = 92

// AdController serves the seller and storefront facing ad API.
type AdController struct {
	svc *adservice.Service
}

// NewAdController creates a new ad controller
func NewAdController(svc *adservice.Service) *AdController {
	return &AdController{svc: svc}
}

// HandleSelectBanner picks the banner for a slot. 204 when nothing is eligible.
func (ac *AdController) HandleSelectBanner(c *fiber.Ctx) error {
	tier, err := strconv.Atoi(c.Params("tier"))
	if err != nil {
		return badRequest(c, "tier must be a number")
	}
	ad, err := ac.svc.SelectBannerForSlot(c.UserContext(), tier, auction.SlotContext{
		Page:     c.Query("page"),
		Category: c.Query("category"),
	})
	if err != nil {
		return respondError(c, err)
	}
	if ad == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(fiber.Map{
		"ad_id":     ad.ID,
		"tier":      ad.Tier,
		"image_url": ad.ImageURL,
		"link_url":  ad.LinkURL,
	})
}

type sponsoredRequest struct {
	Query      string `json:"query"`
	Category   string `json:"category"`
	ProductIDs []uint `json:"product_ids"`
}

// HandleInsertSponsored splices sponsored products into an organic result list.
func (ac *AdController) HandleInsertSponsored(c *fiber.Ctx) error {
	var req sponsoredRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	organic := make([]sponsored.Result, len(req.ProductIDs))
	for i, id := range req.ProductIDs {
		organic[i] = sponsored.Result{ProductID: id}
	}
	results, err := ac.svc.InsertSponsored(c.UserContext(), organic, sponsored.SearchContext{
		Query:    req.Query,
		Category: req.Category,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"results": results})
}

// HandleRecordView bills or counts an impression. Blocked and ineligible
// views are 200 responses carrying the outcome.
func (ac *AdController) HandleRecordView(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := ac.svc.RecordView(c.UserContext(), id, GetClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

// HandleRecordClick bills or counts a click.
func (ac *AdController) HandleRecordClick(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := ac.svc.RecordClick(c.UserContext(), id, GetClientIP(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

func (ac *AdController) HandleCanShow(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	decision, err := ac.svc.CanShowAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(decision)
}

// HandleCreateAd creates a pending ad from an AdSpec body.
func (ac *AdController) HandleCreateAd(c *fiber.Ctx) error {
	var spec adcatalog.AdSpec
	if err := c.BodyParser(&spec); err != nil {
		return badRequest(c, "invalid request body")
	}
	id, err := ac.svc.CreateAd(c.UserContext(), spec)
	if err != nil {
		return respondError(c, err)
	}
	ad, err := ac.svc.GetAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ad)
}

func (ac *AdController) HandleGetAd(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ad, err := ac.svc.GetAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ad)
}

func (ac *AdController) HandleListSellerAds(c *fiber.Ctx) error {
	sellerID, err := paramID(c, "seller")
	if err != nil {
		return respondError(c, err)
	}
	ads, err := ac.svc.ListSellerAds(c.UserContext(), sellerID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ads": ads})
}

func (ac *AdController) HandleActivate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ad, err := ac.svc.ActivateAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ad)
}

func (ac *AdController) HandleDeactivate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	ad, err := ac.svc.DeactivateAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ad)
}

// HandleResume clears an auto-pause. A refused resume is a 200 with a reason.
func (ac *AdController) HandleResume(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	res, err := ac.svc.ResumeAd(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}

type datesRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// HandleCorrectDates replaces the run window, the only way out of expired.
func (ac *AdController) HandleCorrectDates(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req datesRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return respondError(c, aderrors.Invalid("start_date", "must be YYYY-MM-DD"))
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		return respondError(c, aderrors.Invalid("end_date", "must be YYYY-MM-DD"))
	}
	ad, err := ac.svc.CorrectDates(c.UserContext(), id, start, end)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(ad)
}

// HandleReport returns per-day counters for [from, to]. Defaults to the last 30 days.
func (ac *AdController) HandleReport(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	to := ac.svc.Today()
	from := to.AddDate(0, 0, -29)
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.DateOnly, v); err != nil {
			return respondError(c, aderrors.Invalid("from", "must be YYYY-MM-DD"))
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.DateOnly, v); err != nil {
			return respondError(c, aderrors.Invalid("to", "must be YYYY-MM-DD"))
		}
	}
	if to.Before(from) || to.Sub(from) > maxReportDays*24*time.Hour {
		return respondError(c, aderrors.Invalid("to", "range must be between 1 and 92 days"))
	}

	rows, err := ac.svc.Report(c.UserContext(), id, from, to.AddDate(0, 0, 1))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"ad_id": id, "days": rows})
}

func (ac *AdController) HandlePlans(c *fiber.Ctx) error {
	plans, err := ac.svc.Plans(c.UserContext(), c.Query("type"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"plans": plans})
}

// HandleWallet returns the balance and recent ledger entries of a seller.
func (ac *AdController) HandleWallet(c *fiber.Ctx) error {
	sellerID, err := paramID(c, "seller")
	if err != nil {
		return respondError(c, err)
	}
	balance, err := ac.svc.Balance(c.UserContext(), sellerID)
	if err != nil {
		return respondError(c, err)
	}
	txs, err := ac.svc.Transactions(c.UserContext(), sellerID, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"seller_id": sellerID, "balance": balance, "transactions": txs})
}
