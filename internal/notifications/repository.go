package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/database"
)

// Repository handles notification_logs persistence and the lookups a notification needs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const logColumns = `id, tenant_id, service_event_id, service_role_id, user_id, type, recipient_email,
	COALESCE(subject, ''), status, sent_at, COALESCE(error_message, ''), created_at`

func scanLog(row pgx.Row, l *models.NotificationLog) error {
	return row.Scan(&l.ID, &l.TenantID, &l.ServiceEventID, &l.ServiceRoleID, &l.UserID, &l.Type, &l.RecipientEmail,
		&l.Subject, &l.Status, &l.SentAt, &l.ErrorMessage, &l.CreatedAt)
}

// ListByTenant returns a tenant's notification log, newest first.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.NotificationLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+logColumns+` FROM notification_logs
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.NotificationLog{}
	for rows.Next() {
		var l models.NotificationLog
		if err := scanLog(rows, &l); err != nil {
			return nil, err
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

// GetByID returns one log row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationLog, error) {
	var l models.NotificationLog
	if err := scanLog(r.pool.QueryRow(ctx, `SELECT `+logColumns+` FROM notification_logs WHERE id = $1`, id), &l); err != nil {
		return nil, database.Translate(err)
	}
	return &l, nil
}

// Assignment resolves the recipient, service, event and role of an owner assignment.
// models.ErrNotFound means the event, role or user no longer exists.
func (r *Repository) Assignment(ctx context.Context, eventID, userID, roleID uuid.UUID) (*models.Assignment, error) {
	const q = `SELECT t.name, u.full_name, u.email, s.name, sr.name,
			to_char(e.date, 'YYYY-MM-DD'), to_char(e.start_time, 'HH24:MI'), to_char(e.end_time, 'HH24:MI'), e.subtitle
		FROM service_events e
		JOIN services s ON s.id = e.service_id
		JOIN tenants t ON t.id = e.tenant_id
		JOIN service_roles sr ON sr.id = $3 AND sr.service_id = s.id
		JOIN users u ON u.id = $2
		WHERE e.id = $1`
	var a models.Assignment
	err := r.pool.QueryRow(ctx, q, eventID, userID, roleID).Scan(
		&a.TenantName, &a.RecipientName, &a.Recipient, &a.ServiceName, &a.RoleName,
		&a.Date, &a.StartTime, &a.EndTime, &a.Subtitle)
	if err != nil {
		return nil, database.Translate(err)
	}
	return &a, nil
}

// CreatePending inserts a pending log row.
func (r *Repository) CreatePending(ctx context.Context, l *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (tenant_id, service_event_id, service_role_id, user_id, type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + logColumns
	row := r.pool.QueryRow(ctx, q, l.TenantID, l.ServiceEventID, l.ServiceRoleID, l.UserID, l.Type,
		l.RecipientEmail, l.Subject, models.NotificationStatusPending)
	return database.Translate(scanLog(row, l))
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = $2, sent_at = $3, error_message = NULL WHERE id = $1`,
		id, models.NotificationStatusSent, at)
	return err
}

// MarkFailed records a failed delivery attempt.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notification_logs SET status = $2, error_message = $3 WHERE id = $1`,
		id, models.NotificationStatusFailed, reason)
	return err
}
