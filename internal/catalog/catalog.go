// Package catalog holds the fixed list of services a client can request.
package catalog

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryPainting    Category = "painting"
	CategoryRenovation  Category = "renovation"
	CategoryCleaning    Category = "cleaning"
	CategoryPestControl Category = "pest-control"
)

type Service struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	BasePrice   int64    `json:"base_price"` // cents
	Unit        string   `json:"unit"`
	Description string   `json:"description"`
}

var services = []Service{
	{ID: "painting-interior", Category: CategoryPainting, Name: "Interior Painting", BasePrice: 150_00, Unit: "per room", Description: "Professional interior painting services"},
	{ID: "painting-exterior", Category: CategoryPainting, Name: "Exterior Painting", BasePrice: 250_00, Unit: "per wall", Description: "Exterior wall painting and finishing"},
	{ID: "renovation-kitchen", Category: CategoryRenovation, Name: "Kitchen Renovation", BasePrice: 15000_00, Unit: "per project", Description: "Complete kitchen renovation and remodeling"},
	{ID: "renovation-bathroom", Category: CategoryRenovation, Name: "Bathroom Renovation", BasePrice: 12000_00, Unit: "per project", Description: "Full bathroom renovation services"},
	{ID: "renovation-general", Category: CategoryRenovation, Name: "General Renovation", BasePrice: 8000_00, Unit: "per project", Description: "General home renovation and repairs"},
	{ID: "cleaning-residential", Category: CategoryCleaning, Name: "Residential Cleaning", BasePrice: 350_00, Unit: "per session", Description: "Deep cleaning for homes"},
	{ID: "cleaning-commercial", Category: CategoryCleaning, Name: "Commercial Cleaning", BasePrice: 800_00, Unit: "per session", Description: "Professional office and commercial cleaning"},
	{ID: "pest-control-general", Category: CategoryPestControl, Name: "General Pest Control", BasePrice: 600_00, Unit: "per treatment", Description: "Pest inspection and treatment"},
	{ID: "pest-control-fumigation", Category: CategoryPestControl, Name: "Fumigation Services", BasePrice: 1200_00, Unit: "per property", Description: "Complete property fumigation"},
}

// All returns a copy of the catalog in display order.
func All() []Service {
	out := make([]Service, len(services))
	copy(out, services)
	return out
}

func Find(id string) (Service, bool) {
	id = strings.TrimSpace(id)
	for _, s := range services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

// EstimateCost returns basePrice × qty in cents. Quantities below one count as one.
func EstimateCost(s Service, qty int) int64 {
	if qty < 1 {
		qty = 1
	}
	return s.BasePrice * int64(qty)
}

// FormatRand renders cents as "R1234.50".
func FormatRand(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR%d.%02d", sign, cents/100, cents%100)
}

// ComposeDescription appends the service summary block to the client's own
// details, the way it is shown to workers.
func ComposeDescription(details string, s Service, qty int) string {
	if qty < 1 {
		qty = 1
	}
	return fmt.Sprintf("%s\n\nService: %s\nQuantity: %d %s\nEstimated Cost: %s",
		details, s.Name, qty, s.Unit, FormatRand(EstimateCost(s, qty)))
}
