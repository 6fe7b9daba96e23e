package resources

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles resources persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a resources repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const resourceColumns = `id, tenant_id, title, object_key, url, content_type, created_by, created_at`

func scanResource(row pgx.Row, r *models.Resource) error {
	return row.Scan(&r.ID, &r.TenantID, &r.Title, &r.ObjectKey, &r.URL, &r.ContentType, &r.CreatedBy, &r.CreatedAt)
}

// ListByTenant returns the tenant's library, newest first.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Resource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+resourceColumns+` FROM resources WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Resource{}
	for rows.Next() {
		var res models.Resource
		if err := scanResource(rows, &res); err != nil {
			return nil, err
		}
		list = append(list, res)
	}
	return list, rows.Err()
}

// Create inserts a resource.
func (r *Repository) Create(ctx context.Context, res *models.Resource) error {
	const q = `INSERT INTO resources (tenant_id, title, object_key, url, content_type, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + resourceColumns
	row := r.pool.QueryRow(ctx, q, res.TenantID, res.Title, res.ObjectKey, res.URL, res.ContentType, res.CreatedBy)
	return database.Translate(scanResource(row, res))
}

// GetByID returns a resource by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Resource, error) {
	var res models.Resource
	if err := scanResource(r.pool.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = $1`, id), &res); err != nil {
		return nil, database.Translate(err)
	}
	return &res, nil
}

// Delete removes a resource row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM resources WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
