package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext carries the identity resolved by the API key middleware for the
// duration of one request. Handlers read it instead of hitting the database.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Username   string `json:"username"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
	Plan       string `json:"plan"`
}

// GetUserContext returns the request's resolved identity, or an anonymous
// context when no auth middleware ran.
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx := c.Locals("USER_CONTEXT"); ctx != nil {
		return ctx.(UserContext)
	}
	return UserContext{IsLoggedIn: false, IsAdmin: false}
}

// IsLoggedIn reports whether the request was authenticated.
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin reports whether the authenticated user has the admin role.
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the authenticated user's id, or 0 for anonymous requests.
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}

// GetUsername returns the authenticated user's name, or "" for anonymous requests.
func GetUsername(c *fiber.Ctx) string {
	return GetUserContext(c).Username
}
