package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/PixelMart/app/controllers"
)

type ApiRouter struct {
	opts Options
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Serving
	v1.Get("/ads/slots/:tier", controllers.HandleSelectBanner)
	v1.Post("/ads/sponsored", controllers.HandleInsertSponsored)
	v1.Get("/ads/:id/can-show", controllers.HandleCanShow)

	// Billable events, rate limited per client IP
	events := eventLimiter(h.opts)
	v1.Post("/ads/:id/view", events, controllers.HandleRecordView)
	v1.Post("/ads/:id/click", events, controllers.HandleRecordClick)

	// Seller lifecycle
	v1.Post("/ads", controllers.HandleCreateAd)
	v1.Get("/ads/:id", controllers.HandleGetAd)
	v1.Post("/ads/:id/activate", controllers.HandleActivateAd)
	v1.Post("/ads/:id/deactivate", controllers.HandleDeactivateAd)
	v1.Post("/ads/:id/resume", controllers.HandleResumeAd)
	v1.Put("/ads/:id/dates", controllers.HandleCorrectDates)
	v1.Get("/ads/:id/report", controllers.HandleAdReport)
	v1.Get("/sellers/:seller/ads", controllers.HandleListSellerAds)
	v1.Get("/ad-plans", controllers.HandleAdPlans)
	v1.Get("/wallets/:seller", controllers.HandleWallet)

	// Provider callbacks authenticate with a body signature, not basic auth
	v1.Post("/webhooks/payments", controllers.HandlePaymentWebhook)
}

func eventLimiter(opts Options) fiber.Handler {
	limit := opts.EventRateLimit
	if limit <= 0 {
		limit = 120
	}
	return limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ad_events:" + controllers.GetClientIP(c)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
		Storage: opts.LimiterStorage,
	})
}

func NewApiRouter(opts Options) *ApiRouter {
	return &ApiRouter{opts: opts}
}
