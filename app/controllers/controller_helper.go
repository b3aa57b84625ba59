package controllers

import (
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/supuni9622/ModelSnap/internal/pkg/billing"
	"github.com/supuni9622/ModelSnap/internal/pkg/credits"
	"github.com/supuni9622/ModelSnap/internal/pkg/tryon"
)

// Service singletons wired at application startup. Controllers stay thin
// adapters between fiber and the service layer.
var (
	servicesMu        sync.RWMutex
	generationService *tryon.Service
	creditService     *credits.Service
	billingService    *billing.Service
)

// InitServices binds the service singletons used by the controllers.
func InitServices(gen *tryon.Service, cr *credits.Service, bill *billing.Service) {
	servicesMu.Lock()
	defer servicesMu.Unlock()
	generationService = gen
	creditService = cr
	billingService = bill
}

func getGenerationService() *tryon.Service {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return generationService
}

func getCreditService() *credits.Service {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return creditService
}

func getBillingService() *billing.Service {
	servicesMu.RLock()
	defer servicesMu.RUnlock()
	return billingService
}

// jsonError writes the uniform error envelope used across the API.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// firstHeaderValue returns the first non-empty header among keys.
func firstHeaderValue(c *fiber.Ctx, keys ...string) string {
	for _, k := range keys {
		v := strings.TrimSpace(c.Get(k))
		if v != "" {
			return v
		}
	}
	return ""
}
