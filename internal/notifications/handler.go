package notifications

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/queue"
	"github.com/congregate/backend/pkg/response"
)

const (
	defaultLimit = 100
	maxLimit     = 500
)

// Store is the persistence the notifications handler needs.
type Store interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.NotificationLog, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationLog, error)
}

// Notifier queues assignment notifications.
type Notifier interface {
	EnqueueOwnerAssigned(ctx context.Context, payload queue.OwnerAssignedPayload) error
}

// Handler handles notification log HTTP endpoints.
type Handler struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a notifications handler.
func NewHandler(store Store, notifier Notifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, notifier: notifier, logger: logger}
}

// List handles GET /tenants/:tenantId/notifications?limit=.
func (h *Handler) List(c *gin.Context) {
	limit := defaultLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}
	logs, err := h.store.ListByTenant(c.Request.Context(), middleware.TenantID(c), limit)
	if err != nil {
		h.logger.Error("list notifications", zap.Error(err))
		response.Internal(c, "failed to load notification logs")
		return
	}
	response.OK(c, logs)
}

// Resend handles POST /tenants/:tenantId/notifications/:notificationId/resend for failed deliveries.
func (h *Handler) Resend(c *gin.Context) {
	id, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		response.BadRequest(c, "invalid notification id")
		return
	}
	ctx := c.Request.Context()
	l, err := h.store.GetByID(ctx, id)
	if err != nil || l.TenantID != middleware.TenantID(c) {
		response.NotFound(c, "notification not found")
		return
	}
	if l.Status != models.NotificationStatusFailed {
		response.Conflict(c, "only failed notifications can be resent")
		return
	}
	if l.ServiceEventID == nil || l.ServiceRoleID == nil {
		response.Conflict(c, "the event or role no longer exists")
		return
	}
	err = h.notifier.EnqueueOwnerAssigned(ctx, queue.OwnerAssignedPayload{
		TenantID: l.TenantID, EventID: *l.ServiceEventID, UserID: l.UserID, RoleID: *l.ServiceRoleID,
	})
	if err != nil {
		h.logger.Error("requeue notification", zap.Error(err), zap.String("notification_id", id.String()))
		response.ServiceUnavailable(c, "failed to queue notification")
		return
	}
	response.OK(c, gin.H{"message": "resend queued"})
}

// RegisterRoutes mounts notification routes on the /tenants/:tenantId group.
func (h *Handler) RegisterRoutes(tenant *gin.RouterGroup) {
	managers := middleware.RequireRole(models.TenantRoleOwner, models.TenantRoleAdmin)
	tenant.GET("/notifications", managers, h.List)
	tenant.POST("/notifications/:notificationId/resend", managers, h.Resend)
}
