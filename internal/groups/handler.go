package groups

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/pkg/response"
)

// Store is the persistence the groups handler needs.
type Store interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.Group, error)
	Create(ctx context.Context, g *models.Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	Update(ctx context.Context, g *models.Group) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]models.GroupMember, error)
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error
}

// GroupLimiter checks the tier's group limit.
type GroupLimiter interface {
	CheckGroups(ctx context.Context, tenantID uuid.UUID) error
}

// Handler handles group endpoints.
type Handler struct {
	store   Store
	roles   middleware.RoleLookup
	limiter GroupLimiter
	pub     realtime.Publisher
	logger  *zap.Logger
}

// NewHandler creates a groups handler.
func NewHandler(store Store, roles middleware.RoleLookup, limiter GroupLimiter, pub realtime.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Handler{store: store, roles: roles, limiter: limiter, pub: pub, logger: logger}
}

// GroupRequest is the body for creating or updating a group.
type GroupRequest struct {
	Name        string `json:"name" binding:"required,nonblank"`
	Description string `json:"description"`
}

// List handles GET /tenants/:tenantId/groups.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListByTenant(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.logger.Error("list groups", zap.Error(err))
		response.Internal(c, "failed to list groups")
		return
	}
	response.OK(c, list)
}

// Create handles POST /tenants/:tenantId/groups (owner/admin).
func (h *Handler) Create(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	if err := h.limiter.CheckGroups(ctx, tenantID); err != nil {
		response.FromError(c, err, "failed to check limits")
		return
	}
	g := &models.Group{TenantID: tenantID, Name: strings.TrimSpace(req.Name), Description: strings.TrimSpace(req.Description)}
	if err := h.store.Create(ctx, g); err != nil {
		h.logger.Error("create group", zap.Error(err), zap.String("tenant_id", tenantID.String()))
		response.FromError(c, err, "failed to create group")
		return
	}
	h.pub.PublishChange(ctx, tenantID, realtime.EntityGroup, g.ID)
	response.Created(c, g)
}

// load resolves :groupId and checks the caller's tenant role. manage requires owner or admin.
func (h *Handler) load(c *gin.Context, manage bool) (*models.Group, bool) {
	id, err := uuid.Parse(c.Param("groupId"))
	if err != nil {
		response.BadRequest(c, "invalid group id")
		return nil, false
	}
	ctx := c.Request.Context()
	g, err := h.store.GetByID(ctx, id)
	if err != nil {
		response.FromError(c, err, "failed to load group")
		return nil, false
	}
	role, err := h.roles.Role(ctx, g.TenantID, middleware.UserID(c))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.Forbidden(c, "not a member of this tenant")
		} else {
			response.Internal(c, "failed to resolve tenant role")
		}
		return nil, false
	}
	if manage && role != models.TenantRoleOwner && role != models.TenantRoleAdmin {
		response.Forbidden(c, "insufficient permissions")
		return nil, false
	}
	return g, true
}

// Update handles PATCH /groups/:groupId.
func (h *Handler) Update(c *gin.Context) {
	g, ok := h.load(c, true)
	if !ok {
		return
	}
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	g.Name = strings.TrimSpace(req.Name)
	g.Description = strings.TrimSpace(req.Description)
	if err := h.store.Update(c.Request.Context(), g); err != nil {
		response.FromError(c, err, "failed to update group")
		return
	}
	h.pub.PublishChange(c.Request.Context(), g.TenantID, realtime.EntityGroup, g.ID)
	response.OK(c, g)
}

// Delete handles DELETE /groups/:groupId.
func (h *Handler) Delete(c *gin.Context) {
	g, ok := h.load(c, true)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), g.ID); err != nil {
		response.FromError(c, err, "failed to delete group")
		return
	}
	h.pub.PublishChange(c.Request.Context(), g.TenantID, realtime.EntityGroup, g.ID)
	response.NoContent(c)
}

// ListMembers handles GET /groups/:groupId/members.
func (h *Handler) ListMembers(c *gin.Context) {
	g, ok := h.load(c, false)
	if !ok {
		return
	}
	list, err := h.store.ListMembers(c.Request.Context(), g.ID)
	if err != nil {
		h.logger.Error("list group members", zap.Error(err), zap.String("group_id", g.ID.String()))
		response.Internal(c, "failed to list group members")
		return
	}
	response.OK(c, list)
}

// AddMember handles PUT /groups/:groupId/members/:userId.
func (h *Handler) AddMember(c *gin.Context) {
	g, ok := h.load(c, true)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.store.AddMember(c.Request.Context(), g.ID, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "user is not a member of this tenant")
			return
		}
		response.FromError(c, err, "failed to add group member")
		return
	}
	h.pub.PublishChange(c.Request.Context(), g.TenantID, realtime.EntityGroupMember, g.ID)
	response.NoContent(c)
}

// RemoveMember handles DELETE /groups/:groupId/members/:userId.
func (h *Handler) RemoveMember(c *gin.Context) {
	g, ok := h.load(c, true)
	if !ok {
		return
	}
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if err := h.store.RemoveMember(c.Request.Context(), g.ID, userID); err != nil {
		response.FromError(c, err, "failed to remove group member")
		return
	}
	h.pub.PublishChange(c.Request.Context(), g.TenantID, realtime.EntityGroupMember, g.ID)
	response.NoContent(c)
}

// RegisterRoutes mounts group routes. tenant is the /tenants/:tenantId group guarded by RequireTenantMember.
func (h *Handler) RegisterRoutes(api, tenant *gin.RouterGroup) {
	tenant.GET("/groups", h.List)
	tenant.POST("/groups", middleware.RequireRole(models.TenantRoleOwner, models.TenantRoleAdmin), h.Create)

	api.PATCH("/groups/:groupId", h.Update)
	api.DELETE("/groups/:groupId", h.Delete)
	api.GET("/groups/:groupId/members", h.ListMembers)
	api.PUT("/groups/:groupId/members/:userId", h.AddMember)
	api.DELETE("/groups/:groupId/members/:userId", h.RemoveMember)
}
