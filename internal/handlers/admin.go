package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/midrand-elite/meg-services/internal/requests"
	"github.com/midrand-elite/meg-services/internal/stats"
)

type AdminHandler struct {
	Svc *requests.Service
	Now func() time.Time
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	list, err := h.Svc.All(c.UserContext())
	if err != nil {
		return err
	}

	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats.Compute(list, now),
	})
}
