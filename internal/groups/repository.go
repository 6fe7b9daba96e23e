package groups

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles groups and group_members persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a groups repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const groupColumns = `id, tenant_id, name, description, created_at, updated_at`

func scanGroup(row pgx.Row, g *models.Group) error {
	return row.Scan(&g.ID, &g.TenantID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt)
}

// ListByTenant returns a tenant's groups ordered by name.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+groupColumns+` FROM groups WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Group{}
	for rows.Next() {
		var g models.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// Create inserts a group.
func (r *Repository) Create(ctx context.Context, g *models.Group) error {
	const q = `INSERT INTO groups (tenant_id, name, description) VALUES ($1, $2, $3) RETURNING ` + groupColumns
	return database.Translate(scanGroup(r.pool.QueryRow(ctx, q, g.TenantID, g.Name, g.Description), g))
}

// GetByID returns a group by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	var g models.Group
	if err := scanGroup(r.pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = $1`, id), &g); err != nil {
		return nil, database.Translate(err)
	}
	return &g, nil
}

// Update sets name and description.
func (r *Repository) Update(ctx context.Context, g *models.Group) error {
	const q = `UPDATE groups SET name = $2, description = $3, updated_at = NOW() WHERE id = $1 RETURNING ` + groupColumns
	return database.Translate(scanGroup(r.pool.QueryRow(ctx, q, g.ID, g.Name, g.Description), g))
}

// Delete removes a group.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListMembers returns a group's members with user details.
func (r *Repository) ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error) {
	const q = `SELECT gm.group_id, gm.user_id, u.email, u.full_name, gm.created_at
		FROM group_members gm
		INNER JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.full_name, u.email`
	rows, err := r.pool.Query(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.GroupMember{}
	for rows.Next() {
		var m models.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Email, &m.FullName, &m.AddedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// AddMember puts userID in the group. The user must belong to the group's tenant, otherwise
// models.ErrNotFound. Adding an existing member is a no-op.
func (r *Repository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	const q = `INSERT INTO group_members (group_id, user_id)
		SELECT g.id, m.user_id FROM groups g
		INNER JOIN tenant_members m ON m.tenant_id = g.tenant_id AND m.user_id = $2
		WHERE g.id = $1
		ON CONFLICT (group_id, user_id) DO NOTHING
		RETURNING user_id`
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, q, groupID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`,
			groupID, userID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		return models.ErrNotFound
	}
	return database.Translate(err)
}

// RemoveMember takes userID out of the group.
func (r *Repository) RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}
