package permissions

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository answers admin lookups from service_admins.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a permissions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AdminServiceIDs returns the subset of serviceIDs administered by userID.
func (r *Repository) AdminServiceIDs(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT service_id FROM service_admins WHERE user_id = $1 AND service_id = ANY($2)`,
		userID, serviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]bool)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
