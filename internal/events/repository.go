package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles service_events and service_event_owners persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Filter narrows an event listing. Dates are YYYY-MM-DD and inclusive.
type Filter struct {
	ServiceID *uuid.UUID
	From      string
	To        string
}

const eventColumns = `id, service_id, tenant_id, to_char(date, 'YYYY-MM-DD'),
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'), subtitle, copied_from_event_id,
	created_at, updated_at`

func scanEvent(row pgx.Row, e *models.ServiceEvent) error {
	return row.Scan(&e.ID, &e.ServiceID, &e.TenantID, &e.Date, &e.StartTime, &e.EndTime, &e.Subtitle,
		&e.CopiedFromEventID, &e.CreatedAt, &e.UpdatedAt)
}

func (r *Repository) list(ctx context.Context, q string, args ...any) ([]models.ServiceEvent, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ServiceEvent{}
	for rows.Next() {
		var e models.ServiceEvent
		if err := scanEvent(rows, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ListByTenant returns a tenant's events ordered by date and start time.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]models.ServiceEvent, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.ServiceID != nil {
		args = append(args, *f.ServiceID)
		where = append(where, fmt.Sprintf("service_id = $%d", len(args)))
	}
	if f.From != "" {
		args = append(args, f.From)
		where = append(where, fmt.Sprintf("date >= $%d::date", len(args)))
	}
	if f.To != "" {
		args = append(args, f.To)
		where = append(where, fmt.Sprintf("date <= $%d::date", len(args)))
	}
	q := `SELECT ` + eventColumns + ` FROM service_events WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date, start_time, created_at`
	return r.list(ctx, q, args...)
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceEvent, error) {
	var e models.ServiceEvent
	if err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM service_events WHERE id = $1`, id), &e); err != nil {
		return nil, database.Translate(err)
	}
	return &e, nil
}

// GetByIDs returns the events among ids that exist.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ServiceEvent, error) {
	return r.list(ctx, `SELECT `+eventColumns+` FROM service_events WHERE id = ANY($1)`, ids)
}

// OwnersByEvent returns the owners of every event in ids with one query. Events without owners map to empty slices.
func (r *Repository) OwnersByEvent(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.ServiceEventOwner, error) {
	out := make(map[uuid.UUID][]models.ServiceEventOwner, len(ids))
	for _, id := range ids {
		out[id] = []models.ServiceEventOwner{}
	}
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT o.service_event_id, o.user_id, o.service_role_id, o.created_at
		FROM service_event_owners o
		INNER JOIN service_roles sr ON sr.id = o.service_role_id
		WHERE o.service_event_id = ANY($1)
		ORDER BY sr.position, o.created_at`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var o models.ServiceEventOwner
		if err := rows.Scan(&o.ServiceEventID, &o.UserID, &o.ServiceRoleID, &o.CreatedAt); err != nil {
			return nil, err
		}
		out[o.ServiceEventID] = append(out[o.ServiceEventID], o)
	}
	return out, rows.Err()
}

// InvalidOwnerRefs returns role ids not belonging to serviceID and user ids not belonging to tenantID.
func (r *Repository) InvalidOwnerRefs(ctx context.Context, tenantID, serviceID uuid.UUID, owners []models.OwnerAssignment) (badRoles, badUsers []uuid.UUID, err error) {
	if len(owners) == 0 {
		return nil, nil, nil
	}
	roleIDs := make([]uuid.UUID, 0, len(owners))
	userIDs := make([]uuid.UUID, 0, len(owners))
	for _, o := range owners {
		roleIDs = append(roleIDs, o.RoleID)
		userIDs = append(userIDs, o.UserID)
	}
	badRoles, err = r.missing(ctx, `SELECT id FROM service_roles WHERE service_id = $1 AND id = ANY($2)`, serviceID, roleIDs)
	if err != nil {
		return nil, nil, err
	}
	badUsers, err = r.missing(ctx, `SELECT user_id FROM tenant_members WHERE tenant_id = $1 AND user_id = ANY($2)`, tenantID, userIDs)
	if err != nil {
		return nil, nil, err
	}
	return badRoles, badUsers, nil
}

// missing runs q (which selects the found subset of want) and returns the ids of want not found.
func (r *Repository) missing(ctx context.Context, q string, scope uuid.UUID, want []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, scope, want)
	if err != nil {
		return nil, err
	}
	found, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, err
	}
	have := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		have[id] = true
	}
	var out []uuid.UUID
	for _, id := range want {
		if !have[id] {
			out = append(out, id)
			have[id] = true
		}
	}
	return out, nil
}

// Create inserts the event and its owners in one transaction.
func (r *Repository) Create(ctx context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO service_events (service_id, tenant_id, date, start_time, end_time, subtitle, copied_from_event_id)
			VALUES ($1, $2, $3::date, $4::time, $5::time, $6, $7) RETURNING ` + eventColumns
		err := scanEvent(tx.QueryRow(ctx, q, e.ServiceID, e.TenantID, e.Date, e.StartTime, e.EndTime, e.Subtitle, e.CopiedFromEventID), e)
		if err != nil {
			return fmt.Errorf("insert event: %w", database.Translate(err))
		}
		return insertOwners(ctx, tx, e.ID, owners)
	})
}

// Update writes the scalar fields and reconciles owners: missing pairs are inserted, extra
// pairs deleted. It returns the pairs that were added.
func (r *Repository) Update(ctx context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) ([]models.OwnerAssignment, error) {
	var added []models.OwnerAssignment
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `UPDATE service_events SET date = $2::date, start_time = $3::time, end_time = $4::time, subtitle = $5, updated_at = NOW()
			WHERE id = $1 RETURNING ` + eventColumns
		if err := scanEvent(tx.QueryRow(ctx, q, e.ID, e.Date, e.StartTime, e.EndTime, e.Subtitle), e); err != nil {
			return fmt.Errorf("update event: %w", database.Translate(err))
		}
		rows, err := tx.Query(ctx, `SELECT user_id, service_role_id FROM service_event_owners WHERE service_event_id = $1 FOR UPDATE`, e.ID)
		if err != nil {
			return err
		}
		current, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OwnerAssignment, error) {
			var o models.OwnerAssignment
			err := row.Scan(&o.UserID, &o.RoleID)
			return o, err
		})
		if err != nil {
			return err
		}
		var removed []models.OwnerAssignment
		added, removed = DiffOwners(current, owners)
		for _, o := range removed {
			if _, err := tx.Exec(ctx, `DELETE FROM service_event_owners WHERE service_event_id = $1 AND user_id = $2 AND service_role_id = $3`,
				e.ID, o.UserID, o.RoleID); err != nil {
				return err
			}
		}
		return insertOwners(ctx, tx, e.ID, added)
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

func insertOwners(ctx context.Context, tx pgx.Tx, eventID uuid.UUID, owners []models.OwnerAssignment) error {
	if len(owners) == 0 {
		return nil
	}
	var b pgx.Batch
	for _, o := range owners {
		b.Queue(`INSERT INTO service_event_owners (service_event_id, user_id, service_role_id) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING`, eventID, o.UserID, o.RoleID)
	}
	if err := tx.SendBatch(ctx, &b).Close(); err != nil {
		return fmt.Errorf("insert owners: %w", database.Translate(err))
	}
	return nil
}

// Delete removes an event; its owners cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM service_events WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DiffOwners compares the stored set with the wanted set.
func DiffOwners(current, wanted []models.OwnerAssignment) (added, removed []models.OwnerAssignment) {
	have := make(map[models.OwnerAssignment]bool, len(current))
	for _, o := range current {
		have[o] = true
	}
	want := make(map[models.OwnerAssignment]bool, len(wanted))
	for _, o := range wanted {
		if want[o] {
			continue
		}
		want[o] = true
		if !have[o] {
			added = append(added, o)
		}
	}
	for _, o := range current {
		if !want[o] {
			removed = append(removed, o)
		}
	}
	return added, removed
}
