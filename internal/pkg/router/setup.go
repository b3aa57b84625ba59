package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the fiber app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App) {
	setup(app, NewApiRouter(), NewWebhookRouter(), NewAdminRouter())
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
