package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"

	"github.com/supuni9622/ModelSnap/app/controllers"
	"github.com/supuni9622/ModelSnap/internal/pkg/env"
)

// WebhookRouter installs the provider webhook endpoints. No rate limiter
// here: providers retry aggressively and dedup makes replays harmless.
type WebhookRouter struct {
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/stripe", controllers.HandleStripeWebhook)
	webhooks.Post("/lemonsqueezy", controllers.HandleLemonSqueezyWebhook)
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

// AdminRouter installs operator endpoints behind basic auth.
type AdminRouter struct {
}

func (h AdminRouter) InstallRouter(app *fiber.App) {
	admin := app.Group("/admin", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("ADMIN_USER", "admin"): env.GetEnv("ADMIN_PASSWORD", ""),
		},
	}))
	admin.Get("/webhooks/orphaned", controllers.HandleAdminOrphanedWebhooks)
	admin.Get("/queue/stats", controllers.HandleAdminQueueStats)
	admin.Get("/queue/jobs/:id", controllers.HandleAdminGetJob)
	admin.Get("/generations/stats", controllers.HandleAdminGenerationStats)
}

func NewAdminRouter() *AdminRouter {
	return &AdminRouter{}
}
