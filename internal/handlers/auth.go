package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/midrand-elite/meg-services/internal/metrics"
	"github.com/midrand-elite/meg-services/internal/middleware"
	"github.com/midrand-elite/meg-services/internal/models"
	"github.com/midrand-elite/meg-services/internal/session"
	"github.com/midrand-elite/meg-services/internal/validation"
)

type AuthHandler struct {
	Sessions     *session.Manager
	Expires      int
	SecureCookie bool
	Log          *zap.Logger
}

type RegisterReq struct {
	FirstName       string `json:"first_name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"` // client / worker
}

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) setTokenCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   h.SecureCookie,
		SameSite: "Lax",
		Expires:  expires,
		MaxAge:   h.Expires * 60,
	})
}

func (h *AuthHandler) clearTokenCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   h.SecureCookie,
		SameSite: "Lax",
	})
}

func sessionBody(s *session.Session) fiber.Map {
	return fiber.Map{
		"user":       s.User,
		"home":       s.Home,
		"token":      s.Token,
		"expires_at": s.ExpiresAt,
	}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	form := validation.SignUp{
		FirstName:       req.FirstName,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
	}
	if errs := form.Validate(); !errs.Empty() {
		return validationFail(c, errs)
	}

	s, err := h.Sessions.SignUp(c.UserContext(), req.Email, req.Password, req.FirstName, models.ParseRole(req.Role))
	if err != nil {
		h.Log.Info("sign up rejected", zap.Error(err))
		return authFail(c, err, "Sign up failed")
	}

	h.setTokenCookie(c, s.Token, s.ExpiresAt)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Account created",
		"data":    sessionBody(s),
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid body")
	}

	form := validation.SignIn{Email: req.Email, Password: req.Password}
	if errs := form.Validate(); !errs.Empty() {
		return validationFail(c, errs)
	}

	s, err := h.Sessions.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		metrics.SignIns.WithLabelValues("password", "failed").Inc()
		return authFail(c, err, "Sign in failed")
	}
	metrics.SignIns.WithLabelValues("password", "ok").Inc()

	h.setTokenCookie(c, s.Token, s.ExpiresAt)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Signed in",
		"data":    sessionBody(s),
	})
}

// Logout revokes the presented token, if any, and clears the cookie.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if tok := middleware.TokenFromRequest(c); tok != "" {
		if err := h.Sessions.SignOut(c.UserContext(), tok); err != nil {
			h.Log.Error("sign out failed", zap.Error(err))
			return authFail(c, err, "Sign out failed")
		}
	}

	h.clearTokenCookie(c)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Signed out",
		"data":    fiber.Map{"home": session.HomeRoute(nil)},
	})
}

// Me backs the profile screen.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	u := middleware.CurrentUser(c)
	if u == nil {
		return fiber.ErrUnauthorized
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user": u,
			"home": session.HomeRoute(u),
		},
	})
}
