package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/supuni9622/ModelSnap/app/models"
	"github.com/supuni9622/ModelSnap/app/repository"
	"github.com/supuni9622/ModelSnap/internal/pkg/database"
	"github.com/supuni9622/ModelSnap/internal/pkg/usercontext"
)

type issueAPIKeyRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleIssueAPIKey exchanges account credentials for a fresh API key. The
// raw key is returned exactly once; only its hash is stored.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	var body issueAPIKeyRequest
	if err := c.BodyParser(&body); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "Invalid request body")
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" || body.Password == "" {
		return jsonError(c, fiber.StatusBadRequest, "validation_error", "Email and password are required")
	}

	repo := repository.GetGlobalFactory().GetUserRepository()
	user, err := repo.GetByEmail(email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid credentials")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lookup failed")
	}
	if !user.CheckPassword(body.Password) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Invalid credentials")
	}
	if !user.IsActive() {
		return jsonError(c, fiber.StatusForbidden, "forbidden", "User inactive")
	}

	db := database.GetDB()
	settings, err := models.GetOrCreateUserSettings(db, user.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Settings lookup failed")
	}
	// Issuing replaces any existing key; tell the caller when that happened.
	rotated := settings.HasActiveAPIKey()
	rawKey, err := settings.IssueAPIKey()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Key generation failed")
	}
	if err := db.Save(settings).Error; err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Key persistence failed")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key":    rawKey,
		"key_prefix": settings.APIKeyPrefix,
		"rotated":    rotated,
	})
}

// HandleGetAccount returns the authenticated user's profile, plan and balance.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Authentication required")
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Lookup failed")
	}

	balance, err := getCreditService().Balance(c.Context(), userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Balance lookup failed")
	}

	return c.JSON(fiber.Map{
		"id":      user.ID,
		"name":    user.Name,
		"email":   user.Email,
		"plan":    userCtx.Plan,
		"balance": balance,
	})
}
