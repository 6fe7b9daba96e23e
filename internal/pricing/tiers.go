// Package pricing holds the static price tier catalogue and enforces its limits.
package pricing

import (
	"github.com/Rhymond/go-money"

	"github.com/congregate/backend/internal/models"
)

// Tier ids.
const (
	TierFree         = "free"
	TierGrowth       = "growth"
	TierCongregation = "congregation"
)

// DefaultTier is assigned to new tenants.
const DefaultTier = TierFree

type tierDef struct {
	id, name          string
	cents             int64
	users, groups, ev int
}

// Zero limits are unlimited.
var catalogue = []tierDef{
	{id: TierFree, name: "Free", cents: 0, users: 25, groups: 5, ev: 20},
	{id: TierGrowth, name: "Growth", cents: 1900, users: 150, groups: 25, ev: 200},
	{id: TierCongregation, name: "Congregation", cents: 4900, users: 0, groups: 0, ev: 0},
}

func (d tierDef) model() models.PriceTier {
	price := money.New(d.cents, money.USD)
	return models.PriceTier{
		ID:                d.id,
		Name:              d.name,
		MonthlyPriceCents: price.Amount(),
		Currency:          price.Currency().Code,
		MonthlyPrice:      price.Display(),
		MaxUsers:          d.users,
		MaxGroups:         d.groups,
		MaxEventsPerMonth: d.ev,
	}
}

// Tiers returns the catalogue in display order.
func Tiers() []models.PriceTier {
	out := make([]models.PriceTier, 0, len(catalogue))
	for _, d := range catalogue {
		out = append(out, d.model())
	}
	return out
}

// Tier returns one tier by id.
func Tier(id string) (models.PriceTier, bool) {
	for _, d := range catalogue {
		if d.id == id {
			return d.model(), true
		}
	}
	return models.PriceTier{}, false
}
