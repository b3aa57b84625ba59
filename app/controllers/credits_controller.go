package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/supuni9622/ModelSnap/internal/pkg/usercontext"
)

// HandleGetCreditBalance returns the caller's cached credit balance.
func HandleGetCreditBalance(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	balance, err := getCreditService().Balance(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Balance lookup failed")
	}

	return c.JSON(fiber.Map{"balance": balance})
}

// HandleGetCreditHistory returns the caller's most recent ledger entries.
func HandleGetCreditHistory(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	entries, err := getCreditService().History(c.Context(), userCtx.UserID, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "History lookup failed")
	}

	return c.JSON(fiber.Map{"entries": entries})
}
