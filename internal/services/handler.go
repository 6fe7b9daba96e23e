package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/permissions"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/validation"
)

// Store is the persistence gateway for services and their collections.
type Store interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Service, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.ServiceDetail, error)
	CreateWithAssociations(ctx context.Context, s *models.Service, adminIDs, groupIDs []uuid.UUID, notes []models.NoteDraft, roles []models.RoleDraft) error
	Update(ctx context.Context, s *models.Service) error
	Delete(ctx context.Context, id uuid.UUID) error

	ListAdminIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	AddAdmin(ctx context.Context, serviceID, tenantID, userID uuid.UUID) error
	RemoveAdmin(ctx context.Context, serviceID, userID uuid.UUID) error
	ReplaceAdmins(ctx context.Context, serviceID, tenantID uuid.UUID, userIDs []uuid.UUID) error

	ListGroupIDs(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	AddGroup(ctx context.Context, serviceID, tenantID, groupID uuid.UUID) error
	RemoveGroup(ctx context.Context, serviceID, groupID uuid.UUID) error
	SetGroups(ctx context.Context, serviceID, tenantID uuid.UUID, groupIDs []uuid.UUID) error

	ListNotes(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceNote, error)
	UpsertNote(ctx context.Context, serviceID, tenantID uuid.UUID, d models.NoteDraft) (*models.ServiceNote, error)
	DeleteNote(ctx context.Context, serviceID, noteID uuid.UUID) error

	ListRoles(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceRole, error)
	UpsertRole(ctx context.Context, serviceID, tenantID uuid.UUID, d models.RoleDraft) (*models.ServiceRole, error)
	DeleteRole(ctx context.Context, serviceID, roleID uuid.UUID) error
}

// ManageChecker resolves service manage rights.
type ManageChecker interface {
	CanManageServices(ctx context.Context, role models.TenantRole, userID uuid.UUID, serviceIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	CanManageService(ctx context.Context, role models.TenantRole, userID, serviceID uuid.UUID) (bool, error)
}

// Handler handles service endpoints.
type Handler struct {
	store  Store
	roles  middleware.RoleLookup
	perms  ManageChecker
	pub    realtime.Publisher
	logger *zap.Logger
}

// NewHandler creates a services handler.
func NewHandler(store Store, roles middleware.RoleLookup, perms ManageChecker, pub realtime.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Handler{store: store, roles: roles, perms: perms, pub: pub, logger: logger}
}

// NoteInput is a note as sent by clients. ID is client-generated; zero means "assign one".
type NoteInput struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Link *string   `json:"link"`
}

// RoleInput is a role as sent by clients.
type RoleInput struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
}

// FieldsRequest carries the scalar fields of a service.
type FieldsRequest struct {
	Name             string  `json:"name"`
	DefaultStartTime *string `json:"default_start_time"`
	DefaultEndTime   *string `json:"default_end_time"`
}

// CreateRequest is the body for POST /tenants/:tenantId/services.
type CreateRequest struct {
	FieldsRequest
	AdminIDs []uuid.UUID `json:"admin_ids"`
	GroupIDs []uuid.UUID `json:"group_ids"`
	Notes    []NoteInput `json:"notes"`
	Roles    []RoleInput `json:"roles"`
}

// IDsRequest is the body for full-set admin and group writes.
type IDsRequest struct {
	UserIDs  []uuid.UUID `json:"user_ids"`
	GroupIDs []uuid.UUID `json:"group_ids"`
}

func (f FieldsRequest) fields() (models.ServiceFields, error) {
	return models.NewServiceFields(f.Name, f.DefaultStartTime, f.DefaultEndTime)
}

// drafts validates every note and role, reporting errors as notes[i].field.
func (r CreateRequest) drafts() ([]models.NoteDraft, []models.RoleDraft, error) {
	fe := validation.FieldErrors{}
	notes := make([]models.NoteDraft, 0, len(r.Notes))
	for i, in := range r.Notes {
		d, err := models.NewNoteDraft(in.ID, in.Text, in.Link)
		if !mergeIndexed(fe, "notes", i, err) {
			notes = append(notes, d)
		}
	}
	roles := make([]models.RoleDraft, 0, len(r.Roles))
	for i, in := range r.Roles {
		d, err := models.NewRoleDraft(in.ID, in.Name, in.Description)
		if !mergeIndexed(fe, "roles", i, err) {
			roles = append(roles, d)
		}
	}
	if len(fe) > 0 {
		return nil, nil, fe
	}
	return notes, roles, nil
}

func mergeIndexed(dst validation.FieldErrors, prefix string, i int, err error) bool {
	if err == nil {
		return false
	}
	var fe validation.FieldErrors
	if errors.As(err, &fe) {
		for k, v := range fe {
			dst[fmt.Sprintf("%s[%d].%s", prefix, i, k)] = v
		}
	} else {
		dst[fmt.Sprintf("%s[%d]", prefix, i)] = validation.MsgInvalid
	}
	return true
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == uuid.Nil {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// List handles GET /tenants/:tenantId/services. Each row carries can_manage, resolved in one batch.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	list, err := h.store.ListByTenant(ctx, tenantID)
	if err != nil {
		h.logger.Error("list services", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.Internal(c, "failed to list services")
		return
	}
	ids := make([]uuid.UUID, len(list))
	for i, s := range list {
		ids[i] = s.ID
	}
	can, err := h.perms.CanManageServices(ctx, middleware.TenantRole(c), middleware.UserID(c), ids)
	if err != nil {
		h.logger.Error("resolve service permissions", zap.Error(err))
		response.Internal(c, "failed to list services")
		return
	}
	items := make([]models.ServiceListItem, len(list))
	for i, s := range list {
		items[i] = models.ServiceListItem{Service: s, CanManage: can[s.ID]}
	}
	response.OK(c, items)
}

// Create handles POST /tenants/:tenantId/services (owner only): the service and all of its
// collections in one transaction.
func (h *Handler) Create(c *gin.Context) {
	if !permissions.CanCreateService(middleware.TenantRole(c)) {
		response.Forbidden(c, "only tenant owners can create services")
		return
	}
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	fields, err := req.fields()
	if err != nil {
		response.FromError(c, err, "invalid service")
		return
	}
	notes, roles, err := req.drafts()
	if err != nil {
		response.FromError(c, err, "invalid service")
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	s := &models.Service{
		TenantID:         tenantID,
		Name:             fields.Name,
		DefaultStartTime: fields.DefaultStartTime,
		DefaultEndTime:   fields.DefaultEndTime,
	}
	if err := h.store.CreateWithAssociations(ctx, s, uniqueIDs(req.AdminIDs), uniqueIDs(req.GroupIDs), notes, roles); err != nil {
		h.logger.Error("create service", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.FromError(c, err, "failed to create service")
		return
	}
	h.pub.PublishChange(ctx, tenantID, realtime.EntityService, s.ID)
	detail, err := h.store.GetDetail(ctx, s.ID)
	if err != nil {
		response.Created(c, models.ServiceDetail{Service: *s})
		return
	}
	response.Created(c, detail)
}

// load resolves :serviceId and the caller's tenant role. With manage set, the caller must be the
// tenant owner or a service admin.
func (h *Handler) load(c *gin.Context, manage bool) (*models.Service, bool) {
	id, err := uuid.Parse(c.Param("serviceId"))
	if err != nil {
		response.BadRequest(c, "invalid service id")
		return nil, false
	}
	ctx := c.Request.Context()
	s, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.FromError(c, err, "failed to load service")
		return nil, false
	}
	userID := middleware.UserID(c)
	role, err := h.roles.Role(ctx, s.TenantID, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Forbidden(c, "not a member of this tenant")
		} else {
			response.Internal(c, "failed to resolve tenant role")
		}
		return nil, false
	}
	if manage {
		ok, err := h.perms.CanManageService(ctx, role, userID, s.ID)
		if err != nil {
			h.logger.Error("resolve service permissions", zap.Error(err), zap.String("service_id", s.ID.String()))
			response.Internal(c, "failed to resolve permissions")
			return nil, false
		}
		if !ok {
			response.Forbidden(c, "insufficient permissions")
			return nil, false
		}
	}
	return s, true
}

// changed publishes a refetch signal for the service's tenant.
func (h *Handler) changed(c *gin.Context, s *models.Service, entity string) {
	h.pub.PublishChange(c.Request.Context(), s.TenantID, entity, s.ID)
}

// Get handles GET /services/:serviceId.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.load(c, false)
	if !ok {
		return
	}
	d, err := h.store.GetDetail(c.Request.Context(), s.ID)
	if err != nil {
		response.FromError(c, err, "failed to load service")
		return
	}
	response.OK(c, d)
}

// Update handles PATCH /services/:serviceId. Only scalar fields change here.
func (h *Handler) Update(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	var req FieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	fields, err := req.fields()
	if err != nil {
		response.FromError(c, err, "invalid service")
		return
	}
	s.Name, s.DefaultStartTime, s.DefaultEndTime = fields.Name, fields.DefaultStartTime, fields.DefaultEndTime
	if err := h.store.Update(c.Request.Context(), s); err != nil {
		h.logger.Error("update service", zap.Error(err), zap.String("service_id", s.ID.String()))
		response.FromError(c, err, "failed to update service")
		return
	}
	h.changed(c, s, realtime.EntityService)
	response.OK(c, s)
}

// Delete handles DELETE /services/:serviceId.
func (h *Handler) Delete(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), s.ID); err != nil {
		response.FromError(c, err, "failed to delete service")
		return
	}
	h.changed(c, s, realtime.EntityService)
	response.NoContent(c)
}

// ListAdmins handles GET /services/:serviceId/admins.
func (h *Handler) ListAdmins(c *gin.Context) {
	s, ok := h.load(c, false)
	if !ok {
		return
	}
	ids, err := h.store.ListAdminIDs(c.Request.Context(), s.ID)
	if err != nil {
		response.FromError(c, err, "failed to list admins")
		return
	}
	response.OK(c, ids)
}

// AddAdmin handles PUT /services/:serviceId/admins/:userId.
func (h *Handler) AddAdmin(c *gin.Context) {
	h.withParam(c, "userId", func(s *models.Service, userID uuid.UUID) error {
		return h.store.AddAdmin(c.Request.Context(), s.ID, s.TenantID, userID)
	}, realtime.EntityServiceAdmin, "failed to add admin")
}

// RemoveAdmin handles DELETE /services/:serviceId/admins/:userId.
func (h *Handler) RemoveAdmin(c *gin.Context) {
	h.withParam(c, "userId", func(s *models.Service, userID uuid.UUID) error {
		return h.store.RemoveAdmin(c.Request.Context(), s.ID, userID)
	}, realtime.EntityServiceAdmin, "failed to remove admin")
}

// ReplaceAdmins handles PUT /services/:serviceId/admins {user_ids}: full replace.
func (h *Handler) ReplaceAdmins(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.ReplaceAdmins(c.Request.Context(), s.ID, s.TenantID, uniqueIDs(req.UserIDs)); err != nil {
		response.FromError(c, err, "failed to replace admins")
		return
	}
	h.changed(c, s, realtime.EntityServiceAdmin)
	response.NoContent(c)
}

// ListGroups handles GET /services/:serviceId/groups.
func (h *Handler) ListGroups(c *gin.Context) {
	s, ok := h.load(c, false)
	if !ok {
		return
	}
	ids, err := h.store.ListGroupIDs(c.Request.Context(), s.ID)
	if err != nil {
		response.FromError(c, err, "failed to list groups")
		return
	}
	response.OK(c, ids)
}

// AddGroup handles PUT /services/:serviceId/groups/:groupId.
func (h *Handler) AddGroup(c *gin.Context) {
	h.withParam(c, "groupId", func(s *models.Service, groupID uuid.UUID) error {
		return h.store.AddGroup(c.Request.Context(), s.ID, s.TenantID, groupID)
	}, realtime.EntityServiceGroup, "failed to add group")
}

// RemoveGroup handles DELETE /services/:serviceId/groups/:groupId.
func (h *Handler) RemoveGroup(c *gin.Context) {
	h.withParam(c, "groupId", func(s *models.Service, groupID uuid.UUID) error {
		return h.store.RemoveGroup(c.Request.Context(), s.ID, groupID)
	}, realtime.EntityServiceGroup, "failed to remove group")
}

// SetGroups handles PUT /services/:serviceId/groups {group_ids}: insert missing, delete extra.
func (h *Handler) SetGroups(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	var req IDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.SetGroups(c.Request.Context(), s.ID, s.TenantID, uniqueIDs(req.GroupIDs)); err != nil {
		response.FromError(c, err, "failed to set groups")
		return
	}
	h.changed(c, s, realtime.EntityServiceGroup)
	response.NoContent(c)
}

// ListNotes handles GET /services/:serviceId/notes.
func (h *Handler) ListNotes(c *gin.Context) {
	s, ok := h.load(c, false)
	if !ok {
		return
	}
	notes, err := h.store.ListNotes(c.Request.Context(), s.ID)
	if err != nil {
		response.FromError(c, err, "failed to list notes")
		return
	}
	response.OK(c, notes)
}

// UpsertNote handles PUT /services/:serviceId/notes/:noteId: writes exactly one row.
func (h *Handler) UpsertNote(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	noteID, err := uuid.Parse(c.Param("noteId"))
	if err != nil || noteID == uuid.Nil {
		response.BadRequest(c, "invalid note id")
		return
	}
	var in NoteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	d, err := models.NewNoteDraft(noteID, in.Text, in.Link)
	if err != nil {
		response.FromError(c, err, "invalid note")
		return
	}
	n, err := h.store.UpsertNote(c.Request.Context(), s.ID, s.TenantID, d)
	if err != nil {
		h.logger.Error("upsert note", zap.Error(err), zap.String("service_id", s.ID.String()))
		response.FromError(c, err, "failed to save note")
		return
	}
	h.changed(c, s, realtime.EntityServiceNote)
	response.OK(c, n)
}

// DeleteNote handles DELETE /services/:serviceId/notes/:noteId.
func (h *Handler) DeleteNote(c *gin.Context) {
	h.withParam(c, "noteId", func(s *models.Service, noteID uuid.UUID) error {
		return h.store.DeleteNote(c.Request.Context(), s.ID, noteID)
	}, realtime.EntityServiceNote, "failed to delete note")
}

// ListRoles handles GET /services/:serviceId/roles.
func (h *Handler) ListRoles(c *gin.Context) {
	s, ok := h.load(c, false)
	if !ok {
		return
	}
	roles, err := h.store.ListRoles(c.Request.Context(), s.ID)
	if err != nil {
		response.FromError(c, err, "failed to list roles")
		return
	}
	response.OK(c, roles)
}

// UpsertRole handles PUT /services/:serviceId/roles/:roleId.
func (h *Handler) UpsertRole(c *gin.Context) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	roleID, err := uuid.Parse(c.Param("roleId"))
	if err != nil || roleID == uuid.Nil {
		response.BadRequest(c, "invalid role id")
		return
	}
	var in RoleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	d, err := models.NewRoleDraft(roleID, in.Name, in.Description)
	if err != nil {
		response.FromError(c, err, "invalid role")
		return
	}
	ro, err := h.store.UpsertRole(c.Request.Context(), s.ID, s.TenantID, d)
	if err != nil {
		h.logger.Error("upsert role", zap.Error(err), zap.String("service_id", s.ID.String()))
		response.FromError(c, err, "failed to save role")
		return
	}
	h.changed(c, s, realtime.EntityServiceRole)
	response.OK(c, ro)
}

// DeleteRole handles DELETE /services/:serviceId/roles/:roleId.
func (h *Handler) DeleteRole(c *gin.Context) {
	h.withParam(c, "roleId", func(s *models.Service, roleID uuid.UUID) error {
		return h.store.DeleteRole(c.Request.Context(), s.ID, roleID)
	}, realtime.EntityServiceRole, "failed to delete role")
}

// withParam runs a single-row mutation keyed by a uuid path param and answers 204.
func (h *Handler) withParam(c *gin.Context, param string, fn func(s *models.Service, id uuid.UUID) error, entity, failMsg string) {
	s, ok := h.load(c, true)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.BadRequest(c, "invalid "+param)
		return
	}
	if err := fn(s, id); err != nil {
		h.logger.Error(failMsg, zap.Error(err), zap.String("service_id", s.ID.String()), zap.String(param, id.String()))
		response.FromError(c, err, failMsg)
		return
	}
	h.changed(c, s, entity)
	response.NoContent(c)
}

// RegisterRoutes mounts service routes. tenant is the /tenants/:tenantId group guarded by RequireTenantMember.
func (h *Handler) RegisterRoutes(api, tenant *gin.RouterGroup) {
	tenant.GET("/services", h.List)
	tenant.POST("/services", h.Create)

	s := api.Group("/services/:serviceId")
	s.GET("", h.Get)
	s.PATCH("", h.Update)
	s.DELETE("", h.Delete)

	s.GET("/admins", h.ListAdmins)
	s.PUT("/admins", h.ReplaceAdmins)
	s.PUT("/admins/:userId", h.AddAdmin)
	s.DELETE("/admins/:userId", h.RemoveAdmin)

	s.GET("/groups", h.ListGroups)
	s.PUT("/groups", h.SetGroups)
	s.PUT("/groups/:groupId", h.AddGroup)
	s.DELETE("/groups/:groupId", h.RemoveGroup)

	s.GET("/notes", h.ListNotes)
	s.PUT("/notes/:noteId", h.UpsertNote)
	s.DELETE("/notes/:noteId", h.DeleteNote)

	s.GET("/roles", h.ListRoles)
	s.PUT("/roles/:roleId", h.UpsertRole)
	s.DELETE("/roles/:roleId", h.DeleteRole)
}
