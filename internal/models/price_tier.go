package models

// PriceTier is a static subscription plan descriptor. Zero limits mean unlimited.
type PriceTier struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	MonthlyPriceCents int64  `json:"monthly_price_cents"`
	Currency          string `json:"currency"`
	MonthlyPrice      string `json:"monthly_price"` // formatted for display
	MaxUsers          int    `json:"max_users"`
	MaxGroups         int    `json:"max_groups"`
	MaxEventsPerMonth int    `json:"max_events_per_month"`
}
