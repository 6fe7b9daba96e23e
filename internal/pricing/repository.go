package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/pkg/database"
)

// Repository counts tenant usage for the limiter.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a usage repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TierID returns the tenant's price tier id.
func (r *Repository) TierID(ctx context.Context, tenantID uuid.UUID) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `SELECT price_tier_id FROM tenants WHERE id = $1`, tenantID).Scan(&id)
	return id, database.Translate(err)
}

// CountMembers returns the number of tenant members.
func (r *Repository) CountMembers(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM tenant_members WHERE tenant_id = $1`, tenantID)
}

// CountGroups returns the number of tenant groups.
func (r *Repository) CountGroups(ctx context.Context, tenantID uuid.UUID) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM groups WHERE tenant_id = $1`, tenantID)
}

// CountEventsInMonth returns the number of events dated in the month starting at month.
func (r *Repository) CountEventsInMonth(ctx context.Context, tenantID uuid.UUID, month time.Time) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM service_events
		WHERE tenant_id = $1 AND date >= $2::date AND date < ($2::date + INTERVAL '1 month')`,
		tenantID, month.Format("2006-01-02"))
}

func (r *Repository) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, database.Translate(err)
	}
	return n, nil
}
