package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/congregate/backend/internal/models"
)

// Resource names used in limit errors.
const (
	ResourceUsers  = "users"
	ResourceGroups = "groups"
	ResourceEvents = "events"
)

// Usage reports what a tenant currently consumes.
type Usage interface {
	TierID(ctx context.Context, tenantID uuid.UUID) (string, error)
	CountMembers(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountGroups(ctx context.Context, tenantID uuid.UUID) (int, error)
	CountEventsInMonth(ctx context.Context, tenantID uuid.UUID, month time.Time) (int, error)
}

// LimitError reports which limit blocked a create. It matches models.ErrLimitReached.
type LimitError struct {
	Tier     string
	Resource string
	Limit    int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s tier allows at most %d %s", e.Tier, e.Limit, e.Resource)
}

func (e *LimitError) Is(target error) bool {
	return target == models.ErrLimitReached
}

// Limiter checks tier limits before a create. Checks are advisory: two concurrent creates can both pass.
type Limiter struct {
	usage Usage
}

// NewLimiter creates a limiter over usage.
func NewLimiter(usage Usage) *Limiter {
	return &Limiter{usage: usage}
}

// CheckMembers fails when adding one more member would exceed the tier.
func (l *Limiter) CheckMembers(ctx context.Context, tenantID uuid.UUID) error {
	return l.check(ctx, tenantID, ResourceUsers, func(t models.PriceTier) int { return t.MaxUsers },
		func() (int, error) { return l.usage.CountMembers(ctx, tenantID) })
}

// CheckGroups fails when adding one more group would exceed the tier.
func (l *Limiter) CheckGroups(ctx context.Context, tenantID uuid.UUID) error {
	return l.check(ctx, tenantID, ResourceGroups, func(t models.PriceTier) int { return t.MaxGroups },
		func() (int, error) { return l.usage.CountGroups(ctx, tenantID) })
}

// CheckEvents fails when adding one more event in the calendar month of date would exceed the tier.
func (l *Limiter) CheckEvents(ctx context.Context, tenantID uuid.UUID, date time.Time) error {
	month := time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
	return l.check(ctx, tenantID, ResourceEvents, func(t models.PriceTier) int { return t.MaxEventsPerMonth },
		func() (int, error) { return l.usage.CountEventsInMonth(ctx, tenantID, month) })
}

func (l *Limiter) check(ctx context.Context, tenantID uuid.UUID, resource string, limitOf func(models.PriceTier) int, count func() (int, error)) error {
	tierID, err := l.usage.TierID(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("tier lookup: %w", err)
	}
	tier, ok := Tier(tierID)
	if !ok {
		tier, _ = Tier(DefaultTier)
	}
	limit := limitOf(tier)
	if limit == 0 {
		return nil
	}
	n, err := count()
	if err != nil {
		return fmt.Errorf("count %s: %w", resource, err)
	}
	if n >= limit {
		return &LimitError{Tier: tier.Name, Resource: resource, Limit: limit}
	}
	return nil
}
