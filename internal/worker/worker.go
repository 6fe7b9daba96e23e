package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/queue"
)

// LogStore is the persistence the notification processor needs.
type LogStore interface {
	Assignment(ctx context.Context, eventID, userID, roleID uuid.UUID) (*models.Assignment, error)
	CreatePending(ctx context.Context, l *models.NotificationLog) error
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// JobQueue is the job source.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// NotificationProcessor delivers owner assignment notifications: resolve the assignment, log it,
// send it, record the outcome.
type NotificationProcessor struct {
	logs    LogStore
	mailer  Mailer
	queue   JobQueue
	logger  *zap.Logger
	now     func() time.Time
	backoff time.Duration
}

// NewNotificationProcessor creates a processor. A nil mailer disables delivery; jobs are then
// acknowledged without writing a log row.
func NewNotificationProcessor(logs LogStore, mailer Mailer, q JobQueue, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{logs: logs, mailer: mailer, queue: q, logger: logger, now: time.Now, backoff: queue.RetryBackoff}
}

// Process executes one notification job. A returned error means the job should be retried.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeOwnerAssigned {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.OwnerAssignedPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if p.mailer == nil {
		p.logger.Info("notification delivery disabled", zap.String("event_id", payload.EventID.String()), zap.String("user_id", payload.UserID.String()))
		return nil
	}

	a, err := p.logs.Assignment(ctx, payload.EventID, payload.UserID, payload.RoleID)
	if errors.Is(err, models.ErrNotFound) {
		p.logger.Info("assignment gone, dropping notification", zap.String("event_id", payload.EventID.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load assignment: %w", err)
	}
	subject, body := Render(a)

	if payload.NotificationID == nil {
		l := &models.NotificationLog{
			TenantID:       payload.TenantID,
			ServiceEventID: &payload.EventID,
			ServiceRoleID:  &payload.RoleID,
			UserID:         payload.UserID,
			Type:           models.NotificationTypeOwnerAssigned,
			RecipientEmail: a.Recipient,
			Subject:        subject,
		}
		if err := p.logs.CreatePending(ctx, l); err != nil {
			return fmt.Errorf("create log: %w", err)
		}
		payload.NotificationID = &l.ID
		if raw, err := json.Marshal(payload); err == nil {
			job.Payload = raw
		}
	}
	logID := *payload.NotificationID

	if err := p.mailer.Send(ctx, a.Recipient, subject, body); err != nil {
		if mErr := p.logs.MarkFailed(ctx, logID, err.Error()); mErr != nil {
			p.logger.Error("mark notification failed", zap.Error(mErr), zap.String("notification_id", logID.String()))
		}
		return err
	}
	if err := p.logs.MarkSent(ctx, logID, p.now()); err != nil {
		p.logger.Error("mark notification sent", zap.Error(err), zap.String("notification_id", logID.String()))
	}
	p.logger.Info("notification sent", zap.String("notification_id", logID.String()), zap.String("event_id", payload.EventID.String()))
	return nil
}

// Render builds the subject and plain-text body of an assignment notification.
func Render(a *models.Assignment) (subject, body string) {
	subject = fmt.Sprintf("%s: you are %s on %s", a.ServiceName, a.RoleName, a.Date)
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", models.DisplayName(a.RecipientName, a.Recipient))
	fmt.Fprintf(&b, "%s has scheduled you as %s for %s", a.TenantName, a.RoleName, a.ServiceName)
	if a.Subtitle != nil && *a.Subtitle != "" {
		fmt.Fprintf(&b, " (%s)", *a.Subtitle)
	}
	fmt.Fprintf(&b, " on %s, %s-%s.\n", a.Date, a.StartTime, a.EndTime)
	return subject, b.String()
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopping")
			return
		default:
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
