package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/supuni9622/ModelSnap/app/controllers"
	apiv1 "github.com/supuni9622/ModelSnap/internal/api/v1"
	"github.com/supuni9622/ModelSnap/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")

	// Credential exchange is the only unauthenticated v1 route.
	v1.Post("/account/api-key", controllers.HandleIssueAPIKey)

	// Everything registered after this point requires an API key.
	v1.Use(middleware.APIKeyAuthMiddleware())
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
