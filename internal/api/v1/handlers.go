package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/supuni9622/ModelSnap/app/controllers"
)

// Pong is the ping endpoint response body.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the v1 operations.
type ServerInterface interface {
	GetPing(c *fiber.Ctx) error
	GetUserProfile(c *fiber.Ctx) error
	PostGeneration(c *fiber.Ctx) error
	GetGenerations(c *fiber.Ctx) error
	GetGeneration(c *fiber.Ctx) error
	PostGenerationRetry(c *fiber.Ctx) error
	GetCreditBalance(c *fiber.Ctx) error
	GetCreditHistory(c *fiber.Ctx) error
}

// RegisterHandlers attaches the v1 operations to a router group.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	router.Get("/ping", si.GetPing)
	router.Get("/account", si.GetUserProfile)
	router.Post("/generations", si.PostGeneration)
	router.Get("/generations", si.GetGenerations)
	router.Get("/generations/:uuid", si.GetGeneration)
	router.Post("/generations/:uuid/retry", si.PostGenerationRetry)
	router.Get("/credits/balance", si.GetCreditBalance)
	router.Get("/credits/history", si.GetCreditHistory)
}

// APIServer implements the ServerInterface
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetUserProfile returns account information for the authenticated user (API key).
// Security is enforced via API key middleware attached in the router.
func (s *APIServer) GetUserProfile(c *fiber.Ctx) error {
	return controllers.HandleGetAccount(c)
}

// PostGeneration submits a new try-on generation request.
func (s *APIServer) PostGeneration(c *fiber.Ctx) error {
	return controllers.HandleCreateGeneration(c)
}

// GetGenerations lists the caller's generation requests.
func (s *APIServer) GetGenerations(c *fiber.Ctx) error {
	return controllers.HandleListGenerations(c)
}

// GetGeneration returns one generation request by UUID.
func (s *APIServer) GetGeneration(c *fiber.Ctx) error {
	return controllers.HandleGetGeneration(c)
}

// PostGenerationRetry re-opens a failed generation request.
func (s *APIServer) PostGenerationRetry(c *fiber.Ctx) error {
	return controllers.HandleRetryGeneration(c)
}

// GetCreditBalance returns the caller's credit balance.
func (s *APIServer) GetCreditBalance(c *fiber.Ctx) error {
	return controllers.HandleGetCreditBalance(c)
}

// GetCreditHistory returns the caller's recent ledger entries.
func (s *APIServer) GetCreditHistory(c *fiber.Ctx) error {
	return controllers.HandleGetCreditHistory(c)
}
