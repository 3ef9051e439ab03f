package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/midrand-elite/meg-services/internal/models"
)

const userKey = "user"

func setUser(c *fiber.Ctx, u *models.User) {
	c.Locals(userKey, u)
}

// CurrentUser returns the user stored by RequireSession, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, _ := c.Locals(userKey).(*models.User)
	return u
}
