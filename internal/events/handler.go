package events

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/pkg/queue"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/validation"
)

// MaxBatchEvents caps POST /events/owners/batch.
const MaxBatchEvents = 200

// Store is the persistence the events handler needs.
type Store interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID, f Filter) ([]models.ServiceEvent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.ServiceEvent, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ServiceEvent, error)
	OwnersByEvent(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.ServiceEventOwner, error)
	InvalidOwnerRefs(ctx context.Context, tenantID, serviceID uuid.UUID, owners []models.OwnerAssignment) (badRoles, badUsers []uuid.UUID, err error)
	Create(ctx context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) error
	Update(ctx context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) ([]models.OwnerAssignment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ServiceLookup loads the parent service of an event.
type ServiceLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// ManageChecker resolves service manage rights.
type ManageChecker interface {
	CanManageServices(ctx context.Context, role models.TenantRole, userID uuid.UUID, serviceIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	CanManageService(ctx context.Context, role models.TenantRole, userID, serviceID uuid.UUID) (bool, error)
}

// EventLimiter checks the tier's monthly event limit.
type EventLimiter interface {
	CheckEvents(ctx context.Context, tenantID uuid.UUID, date time.Time) error
}

// Notifier queues assignment notifications.
type Notifier interface {
	EnqueueOwnerAssigned(ctx context.Context, payload queue.OwnerAssignedPayload) error
}

// Deps groups the collaborators of Handler.
type Deps struct {
	Store    Store
	Services ServiceLookup
	Roles    middleware.RoleLookup
	Perms    ManageChecker
	Limiter  EventLimiter
	Notifier Notifier
	Pub      realtime.Publisher
	Logger   *zap.Logger
}

// Handler handles service event endpoints.
type Handler struct {
	Deps
}

// NewHandler creates an events handler.
func NewHandler(d Deps) *Handler {
	if d.Pub == nil {
		d.Pub = realtime.Discard
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{Deps: d}
}

// CreateRequest is the body for POST /tenants/:tenantId/events.
type CreateRequest struct {
	ServiceID     uuid.UUID                `json:"service_id" binding:"required"`
	Date          string                   `json:"date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Subtitle      *string                  `json:"subtitle"`
	Owners        []models.OwnerAssignment `json:"owners"`
	Mode          models.EventMode         `json:"mode"`
	SourceEventID *uuid.UUID               `json:"source_event_id"`
}

// UpdateRequest is the body for PATCH /events/:eventId. The service cannot change.
type UpdateRequest struct {
	ServiceID *uuid.UUID               `json:"service_id"`
	Date      string                   `json:"date"`
	StartTime string                   `json:"start_time"`
	EndTime   string                   `json:"end_time"`
	Subtitle  *string                  `json:"subtitle"`
	Owners    []models.OwnerAssignment `json:"owners"`
}

// BatchOwnersRequest is the body for POST /events/owners/batch.
type BatchOwnersRequest struct {
	EventIDs []uuid.UUID `json:"event_ids" binding:"required"`
}

func sameMonth(a, b string) bool {
	ta, errA := time.Parse(validation.DateLayout, a)
	tb, errB := time.Parse(validation.DateLayout, b)
	if errA != nil || errB != nil {
		return false
	}
	return ta.Year() == tb.Year() && ta.Month() == tb.Month()
}

// List handles GET /tenants/:tenantId/events?service_id=&from=&to=. Owners are embedded with one
// batched query; can_manage is resolved with at most one more.
func (h *Handler) List(c *gin.Context) {
	var f Filter
	if s := c.Query("service_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid service_id")
			return
		}
		f.ServiceID = &id
	}
	for _, p := range []struct {
		name string
		dst  *string
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := c.Query(p.name); v != "" {
			if !validation.IsDate(v) {
				response.BadRequest(c, "invalid "+p.name+" date")
				return
			}
			*p.dst = v
		}
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	list, err := h.Store.ListByTenant(ctx, tenantID, f)
	if err != nil {
		h.Logger.Error("list events", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.Internal(c, "failed to list events")
		return
	}
	rows, err := h.rows(ctx, middleware.TenantRole(c), middleware.UserID(c), list)
	if err != nil {
		h.Logger.Error("list events", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, rows)
}

// rows embeds owners and gating for a page of events.
func (h *Handler) rows(ctx context.Context, role models.TenantRole, userID uuid.UUID, list []models.ServiceEvent) ([]models.ServiceEventRow, error) {
	eventIDs := make([]uuid.UUID, len(list))
	serviceIDs := make([]uuid.UUID, len(list))
	for i, e := range list {
		eventIDs[i] = e.ID
		serviceIDs[i] = e.ServiceID
	}
	owners, err := h.Store.OwnersByEvent(ctx, eventIDs)
	if err != nil {
		return nil, err
	}
	can, err := h.Perms.CanManageServices(ctx, role, userID, serviceIDs)
	if err != nil {
		return nil, err
	}
	out := make([]models.ServiceEventRow, len(list))
	for i, e := range list {
		o := owners[e.ID]
		if o == nil {
			o = []models.ServiceEventOwner{}
		}
		out[i] = models.ServiceEventRow{ServiceEvent: e, Owners: o, CanManage: can[e.ServiceID]}
	}
	return out, nil
}

// Create handles POST /tenants/:tenantId/events for both plain creates and copies.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = models.EventModeCreate
	}
	if req.Mode != models.EventModeCreate && req.Mode != models.EventModeCopy {
		response.BadRequest(c, "mode must be create or copy")
		return
	}
	fields, err := models.NewEventFields(req.Date, req.StartTime, req.EndTime, req.Subtitle)
	if err != nil {
		response.FromError(c, err, "invalid event")
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	userID := middleware.UserID(c)

	svc, err := h.Services.GetByID(ctx, req.ServiceID)
	if err != nil || svc.TenantID != tenantID {
		response.NotFound(c, "service not found")
		return
	}
	if ok, err := h.Perms.CanManageService(ctx, middleware.TenantRole(c), userID, svc.ID); err != nil || !ok {
		if err != nil {
			response.Internal(c, "failed to resolve permissions")
			return
		}
		response.Forbidden(c, "insufficient permissions")
		return
	}

	e := &models.ServiceEvent{
		ServiceID: svc.ID,
		TenantID:  tenantID,
		Date:      fields.Date,
		StartTime: fields.StartTime,
		EndTime:   fields.EndTime,
		Subtitle:  fields.Subtitle,
	}
	if req.Mode == models.EventModeCopy {
		if req.SourceEventID == nil {
			response.BadRequest(c, "source_event_id is required when copying")
			return
		}
		src, err := h.Store.GetByID(ctx, *req.SourceEventID)
		if err != nil || src.TenantID != tenantID {
			response.NotFound(c, "source event not found")
			return
		}
		e.CopiedFromEventID = &src.ID
	}

	owners := models.UniqueOwners(req.Owners)
	if !h.ownersValid(c, tenantID, svc.ID, owners) {
		return
	}
	date, _ := time.Parse(validation.DateLayout, fields.Date)
	if err := h.Limiter.CheckEvents(ctx, tenantID, date); err != nil {
		response.FromError(c, err, "failed to check limits")
		return
	}
	if err := h.Store.Create(ctx, e, owners); err != nil {
		h.Logger.Error("create event", zap.Error(err), zap.String("service_id", svc.ID.String()), zap.String("mode", string(req.Mode)))
		response.FromError(c, err, "failed to create event")
		return
	}
	h.notify(ctx, e, owners)
	h.Pub.PublishChange(ctx, tenantID, realtime.EntityEvent, e.ID)

	rows, err := h.rows(ctx, middleware.TenantRole(c), userID, []models.ServiceEvent{*e})
	if err != nil {
		response.Created(c, e)
		return
	}
	response.Created(c, rows[0])
}

// ownersValid writes a 400 and returns false when an owner references a role outside the
// service or a user outside the tenant.
func (h *Handler) ownersValid(c *gin.Context, tenantID, serviceID uuid.UUID, owners []models.OwnerAssignment) bool {
	badRoles, badUsers, err := h.Store.InvalidOwnerRefs(c.Request.Context(), tenantID, serviceID, owners)
	if err != nil {
		h.Logger.Error("validate owners", zap.Error(err))
		response.Internal(c, "failed to validate owners")
		return false
	}
	fe := validation.FieldErrors{}
	if len(badRoles) > 0 {
		fe["owners.role_id"] = validation.MsgInvalid
	}
	if len(badUsers) > 0 {
		fe["owners.user_id"] = validation.MsgInvalid
	}
	if len(fe) > 0 {
		response.Invalid(c, fe)
		return false
	}
	return true
}

// notify queues one notification per newly assigned owner. Queue failures do not fail the request.
func (h *Handler) notify(ctx context.Context, e *models.ServiceEvent, added []models.OwnerAssignment) {
	if h.Notifier == nil {
		return
	}
	for _, o := range added {
		err := h.Notifier.EnqueueOwnerAssigned(ctx, queue.OwnerAssignedPayload{
			TenantID: e.TenantID, EventID: e.ID, UserID: o.UserID, RoleID: o.RoleID,
		})
		if err != nil {
			h.Logger.Warn("enqueue owner notification", zap.Error(err), zap.String("event_id", e.ID.String()))
		}
	}
}

// load resolves :eventId and checks tenant membership; with manage set, also service manage rights.
func (h *Handler) load(c *gin.Context, manage bool) (*models.ServiceEvent, models.TenantRole, bool) {
	id, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return nil, "", false
	}
	ctx := c.Request.Context()
	e, err := h.Store.GetByID(ctx, id)
	if err != nil {
		response.FromError(c, err, "failed to load event")
		return nil, "", false
	}
	userID := middleware.UserID(c)
	role, err := h.Roles.Role(ctx, e.TenantID, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Forbidden(c, "not a member of this tenant")
		} else {
			response.Internal(c, "failed to resolve tenant role")
		}
		return nil, "", false
	}
	if manage {
		ok, err := h.Perms.CanManageService(ctx, role, userID, e.ServiceID)
		if err != nil {
			response.Internal(c, "failed to resolve permissions")
			return nil, "", false
		}
		if !ok {
			response.Forbidden(c, "insufficient permissions")
			return nil, "", false
		}
	}
	return e, role, true
}

// Get handles GET /events/:eventId.
func (h *Handler) Get(c *gin.Context) {
	e, role, ok := h.load(c, false)
	if !ok {
		return
	}
	rows, err := h.rows(c.Request.Context(), role, middleware.UserID(c), []models.ServiceEvent{*e})
	if err != nil {
		h.Logger.Error("load event", zap.Error(err), zap.String("event_id", e.ID.String()))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, rows[0])
}

// Owners handles GET /events/:eventId/owners.
func (h *Handler) Owners(c *gin.Context) {
	e, _, ok := h.load(c, false)
	if !ok {
		return
	}
	owners, err := h.Store.OwnersByEvent(c.Request.Context(), []uuid.UUID{e.ID})
	if err != nil {
		response.Internal(c, "failed to load owners")
		return
	}
	response.OK(c, owners[e.ID])
}

// BatchOwners handles POST /events/owners/batch: owners for a page of events in one round trip.
// Events the caller cannot see are omitted.
func (h *Handler) BatchOwners(c *gin.Context) {
	var req BatchOwnersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if len(req.EventIDs) > MaxBatchEvents {
		response.BadRequest(c, "too many event ids")
		return
	}
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	list, err := h.Store.GetByIDs(ctx, req.EventIDs)
	if err != nil {
		response.Internal(c, "failed to load events")
		return
	}
	member := map[uuid.UUID]bool{}
	visible := make([]uuid.UUID, 0, len(list))
	for _, e := range list {
		ok, seen := member[e.TenantID]
		if !seen {
			_, err := h.Roles.Role(ctx, e.TenantID, userID)
			ok = err == nil
			member[e.TenantID] = ok
		}
		if ok {
			visible = append(visible, e.ID)
		}
	}
	owners, err := h.Store.OwnersByEvent(ctx, visible)
	if err != nil {
		response.Internal(c, "failed to load owners")
		return
	}
	response.OK(c, owners)
}

// Update handles PATCH /events/:eventId. Owners are reconciled; the service stays fixed.
func (h *Handler) Update(c *gin.Context) {
	e, role, ok := h.load(c, true)
	if !ok {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.ServiceID != nil && *req.ServiceID != e.ServiceID {
		response.BadRequest(c, "an event cannot move to another service")
		return
	}
	fields, err := models.NewEventFields(req.Date, req.StartTime, req.EndTime, req.Subtitle)
	if err != nil {
		response.FromError(c, err, "invalid event")
		return
	}
	owners := models.UniqueOwners(req.Owners)
	if !h.ownersValid(c, e.TenantID, e.ServiceID, owners) {
		return
	}
	ctx := c.Request.Context()
	// Moving into another month counts against that month's limit.
	if !sameMonth(e.Date, fields.Date) {
		date, _ := time.Parse(validation.DateLayout, fields.Date)
		if err := h.Limiter.CheckEvents(ctx, e.TenantID, date); err != nil {
			response.FromError(c, err, "failed to check limits")
			return
		}
	}
	e.Date, e.StartTime, e.EndTime, e.Subtitle = fields.Date, fields.StartTime, fields.EndTime, fields.Subtitle
	added, err := h.Store.Update(ctx, e, owners)
	if err != nil {
		h.Logger.Error("update event", zap.Error(err), zap.String("event_id", e.ID.String()))
		response.FromError(c, err, "failed to update event")
		return
	}
	h.notify(ctx, e, added)
	h.Pub.PublishChange(ctx, e.TenantID, realtime.EntityEvent, e.ID)

	rows, err := h.rows(ctx, role, middleware.UserID(c), []models.ServiceEvent{*e})
	if err != nil {
		response.OK(c, e)
		return
	}
	response.OK(c, rows[0])
}

// Delete handles DELETE /events/:eventId.
func (h *Handler) Delete(c *gin.Context) {
	e, _, ok := h.load(c, true)
	if !ok {
		return
	}
	if err := h.Store.Delete(c.Request.Context(), e.ID); err != nil {
		response.FromError(c, err, "failed to delete event")
		return
	}
	h.Pub.PublishChange(c.Request.Context(), e.TenantID, realtime.EntityEvent, e.ID)
	response.NoContent(c)
}

// RegisterRoutes mounts event routes. tenant is the /tenants/:tenantId group guarded by RequireTenantMember.
func (h *Handler) RegisterRoutes(api, tenant *gin.RouterGroup) {
	tenant.GET("/events", h.List)
	tenant.POST("/events", h.Create)

	api.POST("/events/owners/batch", h.BatchOwners)
	api.GET("/events/:eventId", h.Get)
	api.GET("/events/:eventId/owners", h.Owners)
	api.PATCH("/events/:eventId", h.Update)
	api.DELETE("/events/:eventId", h.Delete)
}
