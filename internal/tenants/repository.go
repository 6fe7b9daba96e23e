package tenants

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles tenant and tenant_members persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tenants repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantColumns = `t.id, t.name, t.slug, t.price_tier_id, t.created_at, t.updated_at`

func scanTenant(row pgx.Row, t *models.Tenant, extra ...any) error {
	dest := append([]any{&t.ID, &t.Name, &t.Slug, &t.PriceTierID, &t.CreatedAt, &t.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// Create inserts the tenant and makes ownerID its owner in one transaction.
func (r *Repository) Create(ctx context.Context, t *models.Tenant, ownerID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO tenants AS t (name, slug, price_tier_id) VALUES ($1, $2, $3)
			RETURNING ` + tenantColumns
		if err := scanTenant(tx.QueryRow(ctx, q, t.Name, t.Slug, t.PriceTierID), t); err != nil {
			return fmt.Errorf("insert tenant: %w", database.Translate(err))
		}
		if _, err := tx.Exec(ctx, `INSERT INTO tenant_members (tenant_id, user_id, role) VALUES ($1, $2, $3)`,
			t.ID, ownerID, models.TenantRoleOwner); err != nil {
			return fmt.Errorf("insert owner: %w", database.Translate(err))
		}
		return nil
	})
}

// GetByID returns a tenant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	if err := scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants t WHERE t.id = $1`, id), &t); err != nil {
		return nil, database.Translate(err)
	}
	return &t, nil
}

// GetBySlug returns a tenant by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	if err := scanTenant(r.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants t WHERE t.slug = $1`, slug), &t); err != nil {
		return nil, database.Translate(err)
	}
	return &t, nil
}

// ListForUser returns the tenants userID belongs to, with the user's role in each.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantWithRole, error) {
	const q = `SELECT ` + tenantColumns + `, m.role
		FROM tenants t
		INNER JOIN tenant_members m ON m.tenant_id = t.id
		WHERE m.user_id = $1
		ORDER BY t.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.TenantWithRole{}
	for rows.Next() {
		var tw models.TenantWithRole
		if err := scanTenant(rows, &tw.Tenant, &tw.Role); err != nil {
			return nil, err
		}
		list = append(list, tw)
	}
	return list, rows.Err()
}

// Update sets name and price tier. The slug is immutable.
func (r *Repository) Update(ctx context.Context, t *models.Tenant) error {
	const q = `UPDATE tenants t SET name = $2, price_tier_id = $3, updated_at = NOW() WHERE t.id = $1
		RETURNING ` + tenantColumns
	return database.Translate(scanTenant(r.pool.QueryRow(ctx, q, t.ID, t.Name, t.PriceTierID), t))
}

// Delete removes a tenant; dependent rows cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Role returns userID's role in tenantID, or models.ErrNotFound when not a member.
func (r *Repository) Role(ctx context.Context, tenantID, userID uuid.UUID) (models.TenantRole, error) {
	var role models.TenantRole
	err := r.pool.QueryRow(ctx, `SELECT role FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID).Scan(&role)
	if err != nil {
		return "", database.Translate(err)
	}
	return role, nil
}

// ListMembers returns members of a tenant with user details.
func (r *Repository) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantMember, error) {
	const q = `SELECT m.tenant_id, m.user_id, u.email, u.full_name, m.role, m.created_at
		FROM tenant_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.tenant_id = $1
		ORDER BY u.full_name, u.email`
	rows, err := r.pool.Query(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.TenantMember{}
	for rows.Next() {
		var m models.TenantMember
		if err := rows.Scan(&m.TenantID, &m.UserID, &m.Email, &m.FullName, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// AddMemberByEmail adds the registered user with email to the tenant.
// An unknown email yields models.ErrNotFound; an existing member yields models.ErrConflict.
func (r *Repository) AddMemberByEmail(ctx context.Context, tenantID uuid.UUID, email string, role models.TenantRole) (*models.TenantMember, error) {
	const q = `INSERT INTO tenant_members (tenant_id, user_id, role)
		SELECT $1, u.id, $3 FROM users u WHERE u.email = $2
		RETURNING tenant_id, user_id, role, created_at`
	m := models.TenantMember{Email: email}
	err := r.pool.QueryRow(ctx, q, tenantID, email, role).Scan(&m.TenantID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &m, nil
}

// AddMember adds userID with role. Used by join-by-slug.
func (r *Repository) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO tenant_members (tenant_id, user_id, role) VALUES ($1, $2, $3)`,
		tenantID, userID, role)
	return database.Translate(err)
}

// UpdateMemberRole changes a member's role. Demoting the last owner yields models.ErrConflict.
func (r *Repository) UpdateMemberRole(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if role != models.TenantRoleOwner {
			if err := ensureOtherOwner(ctx, tx, tenantID, userID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `UPDATE tenant_members SET role = $3, updated_at = NOW()
			WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID, role)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// RemoveMember removes a member. Removing the last owner yields models.ErrConflict.
func (r *Repository) RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := ensureOtherOwner(ctx, tx, tenantID, userID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return nil
	})
}

// ensureOtherOwner fails with ErrConflict when userID is the tenant's only owner.
// Owner rows are locked so concurrent demotions serialize.
func ensureOtherOwner(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID) error {
	rows, err := tx.Query(ctx, `SELECT user_id FROM tenant_members WHERE tenant_id = $1 AND role = 'owner' FOR UPDATE`, tenantID)
	if err != nil {
		return err
	}
	owners, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return err
	}
	if len(owners) == 1 && owners[0] == userID {
		return fmt.Errorf("last owner: %w", models.ErrConflict)
	}
	return nil
}
