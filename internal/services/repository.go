package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles services and their admins, groups, notes and roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a services repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const serviceColumns = `id, tenant_id, name,
	to_char(default_start_time, 'HH24:MI'), to_char(default_end_time, 'HH24:MI'),
	created_at, updated_at`

func scanService(row pgx.Row, s *models.Service) error {
	return row.Scan(&s.ID, &s.TenantID, &s.Name, &s.DefaultStartTime, &s.DefaultEndTime, &s.CreatedAt, &s.UpdatedAt)
}

// ListByTenant returns a tenant's services ordered by name.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Service, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services WHERE tenant_id = $1 ORDER BY name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Service{}
	for rows.Next() {
		var s models.Service
		if err := scanService(rows, &s); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetByID returns a service by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var s models.Service
	if err := scanService(r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id), &s); err != nil {
		return nil, database.Translate(err)
	}
	return &s, nil
}

// GetDetail returns a service with admins, groups, notes and roles.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.ServiceDetail, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &models.ServiceDetail{Service: *s}
	if d.AdminIDs, err = r.ListAdminIDs(ctx, id); err != nil {
		return nil, err
	}
	if d.GroupIDs, err = r.ListGroupIDs(ctx, id); err != nil {
		return nil, err
	}
	if d.Notes, err = r.ListNotes(ctx, id); err != nil {
		return nil, err
	}
	if d.Roles, err = r.ListRoles(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateWithAssociations inserts the service and its collections in one transaction.
// Admin ids that are not tenant members and group ids from other tenants are ignored.
// Empty collections issue no statements.
func (r *Repository) CreateWithAssociations(ctx context.Context, s *models.Service, adminIDs, groupIDs []uuid.UUID, notes []models.NoteDraft, roles []models.RoleDraft) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO services (tenant_id, name, default_start_time, default_end_time)
			VALUES ($1, $2, $3::time, $4::time) RETURNING ` + serviceColumns
		if err := scanService(tx.QueryRow(ctx, q, s.TenantID, s.Name, s.DefaultStartTime, s.DefaultEndTime), s); err != nil {
			return fmt.Errorf("insert service: %w", database.Translate(err))
		}
		if len(adminIDs) > 0 {
			if _, err := tx.Exec(ctx, insertAdminsSQL, s.ID, s.TenantID, adminIDs); err != nil {
				return fmt.Errorf("insert admins: %w", database.Translate(err))
			}
		}
		if len(groupIDs) > 0 {
			if _, err := tx.Exec(ctx, insertGroupsSQL, s.ID, s.TenantID, groupIDs); err != nil {
				return fmt.Errorf("insert groups: %w", database.Translate(err))
			}
		}
		if len(notes) == 0 && len(roles) == 0 {
			return nil
		}
		var b pgx.Batch
		for i, n := range notes {
			b.Queue(`INSERT INTO service_notes (id, service_id, tenant_id, text, link, position) VALUES ($1, $2, $3, $4, $5, $6)`,
				n.ID, s.ID, s.TenantID, n.Text, n.Link, i)
		}
		for i, ro := range roles {
			b.Queue(`INSERT INTO service_roles (id, service_id, tenant_id, name, description, position) VALUES ($1, $2, $3, $4, $5, $6)`,
				ro.ID, s.ID, s.TenantID, ro.Name, ro.Description, i)
		}
		if err := tx.SendBatch(ctx, &b).Close(); err != nil {
			return fmt.Errorf("insert notes and roles: %w", database.Translate(err))
		}
		return nil
	})
}

// Update sets the scalar fields.
func (r *Repository) Update(ctx context.Context, s *models.Service) error {
	const q = `UPDATE services SET name = $2, default_start_time = $3::time, default_end_time = $4::time, updated_at = NOW()
		WHERE id = $1 RETURNING ` + serviceColumns
	return database.Translate(scanService(r.pool.QueryRow(ctx, q, s.ID, s.Name, s.DefaultStartTime, s.DefaultEndTime), s))
}

// Delete removes a service; its collections and events cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

const (
	insertAdminsSQL = `INSERT INTO service_admins (service_id, user_id)
		SELECT $1, m.user_id FROM tenant_members m WHERE m.tenant_id = $2 AND m.user_id = ANY($3)
		ON CONFLICT DO NOTHING`
	insertGroupsSQL = `INSERT INTO service_groups (service_id, group_id)
		SELECT $1, g.id FROM groups g WHERE g.tenant_id = $2 AND g.id = ANY($3)
		ON CONFLICT DO NOTHING`
)

// ListAdminIDs returns the user ids administering a service.
func (r *Repository) ListAdminIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, `SELECT user_id FROM service_admins WHERE service_id = $1 ORDER BY created_at, user_id`, serviceID)
}

// AddAdmin grants userID admin rights on the service. The user must be a tenant member,
// otherwise models.ErrNotFound. Granting twice is a no-op.
func (r *Repository) AddAdmin(ctx context.Context, serviceID, tenantID, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, insertAdminsSQL, serviceID, tenantID, []uuid.UUID{userID})
	if err != nil {
		return database.Translate(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM service_admins WHERE service_id = $1 AND user_id = $2)`, serviceID, userID)
}

// RemoveAdmin revokes userID's admin rights on the service.
func (r *Repository) RemoveAdmin(ctx context.Context, serviceID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM service_admins WHERE service_id = $1 AND user_id = $2`, serviceID, userID)
	return err
}

// ReplaceAdmins makes userIDs the exact admin set in one transaction.
func (r *Repository) ReplaceAdmins(ctx context.Context, serviceID, tenantID uuid.UUID, userIDs []uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM service_admins WHERE service_id = $1`, serviceID); err != nil {
			return err
		}
		if len(userIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, insertAdminsSQL, serviceID, tenantID, userIDs)
		return database.Translate(err)
	})
}

// ListGroupIDs returns the group ids associated with a service.
func (r *Repository) ListGroupIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	return r.ids(ctx, `SELECT group_id FROM service_groups WHERE service_id = $1 ORDER BY created_at, group_id`, serviceID)
}

// AddGroup associates a tenant group with the service; a group from another tenant is models.ErrNotFound.
func (r *Repository) AddGroup(ctx context.Context, serviceID, tenantID, groupID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, insertGroupsSQL, serviceID, tenantID, []uuid.UUID{groupID})
	if err != nil {
		return database.Translate(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM service_groups WHERE service_id = $1 AND group_id = $2)`, serviceID, groupID)
}

// RemoveGroup drops one group association.
func (r *Repository) RemoveGroup(ctx context.Context, serviceID, groupID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM service_groups WHERE service_id = $1 AND group_id = $2`, serviceID, groupID)
	return err
}

// SetGroups reconciles associations with groupIDs: missing ones are inserted, extra ones deleted.
func (r *Repository) SetGroups(ctx context.Context, serviceID, tenantID uuid.UUID, groupIDs []uuid.UUID) error {
	if groupIDs == nil {
		groupIDs = []uuid.UUID{}
	}
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM service_groups WHERE service_id = $1 AND NOT (group_id = ANY($2))`,
			serviceID, groupIDs); err != nil {
			return err
		}
		if len(groupIDs) == 0 {
			return nil
		}
		_, err := tx.Exec(ctx, insertGroupsSQL, serviceID, tenantID, groupIDs)
		return database.Translate(err)
	})
}

// ListNotes returns a service's notes in creation order.
func (r *Repository) ListNotes(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, service_id, tenant_id, text, link, position, created_at, updated_at
		FROM service_notes WHERE service_id = $1 ORDER BY position, created_at`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ServiceNote{}
	for rows.Next() {
		var n models.ServiceNote
		if err := rows.Scan(&n.ID, &n.ServiceID, &n.TenantID, &n.Text, &n.Link, &n.Position, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// UpsertNote writes one note keyed by its id. New notes go to the end; existing ones keep
// their position. An id already used by another service yields models.ErrConflict.
func (r *Repository) UpsertNote(ctx context.Context, serviceID, tenantID uuid.UUID, d models.NoteDraft) (*models.ServiceNote, error) {
	const q = `INSERT INTO service_notes (id, service_id, tenant_id, text, link, position)
		VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(position) + 1, 0) FROM service_notes WHERE service_id = $2))
		ON CONFLICT (id) DO UPDATE SET text = EXCLUDED.text, link = EXCLUDED.link, updated_at = NOW()
			WHERE service_notes.service_id = EXCLUDED.service_id
		RETURNING id, service_id, tenant_id, text, link, position, created_at, updated_at`
	var n models.ServiceNote
	err := r.pool.QueryRow(ctx, q, d.ID, serviceID, tenantID, d.Text, d.Link).
		Scan(&n.ID, &n.ServiceID, &n.TenantID, &n.Text, &n.Link, &n.Position, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("note id in use: %w", models.ErrConflict)
	}
	if err != nil {
		return nil, database.Translate(err)
	}
	return &n, nil
}

// DeleteNote removes one note; other notes are untouched.
func (r *Repository) DeleteNote(ctx context.Context, serviceID, noteID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM service_notes WHERE service_id = $1 AND id = $2`, serviceID, noteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListRoles returns a service's roles in creation order.
func (r *Repository) ListRoles(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceRole, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, service_id, tenant_id, name, description, position, created_at, updated_at
		FROM service_roles WHERE service_id = $1 ORDER BY position, created_at`, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ServiceRole{}
	for rows.Next() {
		var ro models.ServiceRole
		if err := rows.Scan(&ro.ID, &ro.ServiceID, &ro.TenantID, &ro.Name, &ro.Description, &ro.Position, &ro.CreatedAt, &ro.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, ro)
	}
	return list, rows.Err()
}

// UpsertRole writes one role keyed by its id, like UpsertNote.
func (r *Repository) UpsertRole(ctx context.Context, serviceID, tenantID uuid.UUID, d models.RoleDraft) (*models.ServiceRole, error) {
	const q = `INSERT INTO service_roles (id, service_id, tenant_id, name, description, position)
		VALUES ($1, $2, $3, $4, $5, (SELECT COALESCE(MAX(position) + 1, 0) FROM service_roles WHERE service_id = $2))
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = NOW()
			WHERE service_roles.service_id = EXCLUDED.service_id
		RETURNING id, service_id, tenant_id, name, description, position, created_at, updated_at`
	var ro models.ServiceRole
	err := r.pool.QueryRow(ctx, q, d.ID, serviceID, tenantID, d.Name, d.Description).
		Scan(&ro.ID, &ro.ServiceID, &ro.TenantID, &ro.Name, &ro.Description, &ro.Position, &ro.CreatedAt, &ro.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("role id in use: %w", models.ErrConflict)
	}
	if err != nil {
		return nil, database.Translate(err)
	}
	return &ro, nil
}

// DeleteRole removes one role. Event owner rows using it cascade.
func (r *Repository) DeleteRole(ctx context.Context, serviceID, roleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM service_roles WHERE service_id = $1 AND id = $2`, serviceID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) ids(ctx context.Context, q string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}

// exists returns nil when the query reports true, models.ErrNotFound otherwise.
func (r *Repository) exists(ctx context.Context, q string, args ...any) error {
	var ok bool
	if err := r.pool.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}
