package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/midrand-elite/meg-services/internal/auth"
	"github.com/midrand-elite/meg-services/internal/models"
)

const TokenCookie = "meg_token"

// Authenticator resolves a session token to the signed-in user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

// TokenFromRequest reads the session cookie, falling back to a bearer header.
func TokenFromRequest(c *fiber.Ctx) string {
	if tok := c.Cookies(TokenCookie); tok != "" {
		return tok
	}
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RequireSession rejects requests without a live session and stores the
// combined user in locals.
func RequireSession(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := TokenFromRequest(c)
		if tokenStr == "" {
			return fiber.ErrUnauthorized
		}

		user, err := a.Authenticate(c.UserContext(), tokenStr)
		if err != nil {
			switch auth.CodeOf(err) {
			case auth.CodeNetworkFailed:
				return fiber.NewError(fiber.StatusServiceUnavailable, auth.Message(auth.CodeNetworkFailed))
			case "":
				return err
			default:
				return fiber.NewError(fiber.StatusUnauthorized, auth.MessageFor(err, "Unauthorized"))
			}
		}

		setUser(c, user)
		return c.Next()
	}
}
