package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/ManuelReschke/PixelMart/app/controllers"
)

type AdminRouter struct {
	opts Options
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	auth := h.requireAdmin()

	// prometheus scrape endpoint
	app.Get("/metrics", auth, metricsHandler())

	adminGroup := app.Group("/api/v1/admin", auth)
	adminGroup.Post("/ads/sweep", controllers.HandleAdminSweep)
	adminGroup.Post("/ads/:id/moderate", controllers.HandleAdminModerate)
	adminGroup.Post("/wallets/:seller/credit", controllers.HandleAdminCredit)
	adminGroup.Post("/ad-plans", controllers.HandleAdminCreatePlan)
	adminGroup.Post("/jobs/:job/run", controllers.HandleAdminRunJob)
}

// requireAdmin rejects every request when no admin password is configured.
func (h AdminRouter) requireAdmin() fiber.Handler {
	if h.opts.AdminPassword == "" {
		log.Warn("[Router] ADMIN_PASSWORD is empty, admin routes are disabled")
		return func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "unavailable", "message": "Admin API is not configured"})
		}
	}
	return basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.opts.AdminUser: h.opts.AdminPassword,
		},
		Realm: "PixelMart Admin",
	})
}

func NewAdminRouter(opts Options) *AdminRouter {
	return &AdminRouter{opts: opts}
}
