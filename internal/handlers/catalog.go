package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/midrand-elite/meg-services/internal/catalog"
)

type CatalogHandler struct{}

type serviceView struct {
	catalog.Service
	PriceLabel string `json:"price_label"`
}

func (h *CatalogHandler) List(c *fiber.Ctx) error {
	all := catalog.All()
	out := make([]serviceView, 0, len(all))
	for _, s := range all {
		out = append(out, serviceView{Service: s, PriceLabel: catalog.FormatRand(s.BasePrice) + " " + s.Unit})
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    out,
	})
}
