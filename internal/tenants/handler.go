package tenants

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/pricing"
	"github.com/congregate/backend/internal/realtime"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/utils"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

// Store is the persistence the tenants handler needs.
type Store interface {
	Create(ctx context.Context, t *models.Tenant, ownerID uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.TenantWithRole, error)
	Update(ctx context.Context, t *models.Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantMember, error)
	AddMemberByEmail(ctx context.Context, tenantID uuid.UUID, email string, role models.TenantRole) (*models.TenantMember, error)
	AddMember(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error
	UpdateMemberRole(ctx context.Context, tenantID, userID uuid.UUID, role models.TenantRole) error
	RemoveMember(ctx context.Context, tenantID, userID uuid.UUID) error
}

// MemberLimiter checks the tier's user limit.
type MemberLimiter interface {
	CheckMembers(ctx context.Context, tenantID uuid.UUID) error
}

// Handler handles tenant and membership endpoints.
type Handler struct {
	store   Store
	limiter MemberLimiter
	pub     realtime.Publisher
	logger  *zap.Logger
}

// NewHandler creates a tenants handler.
func NewHandler(store Store, limiter MemberLimiter, pub realtime.Publisher, logger *zap.Logger) *Handler {
	if pub == nil {
		pub = realtime.Discard
	}
	return &Handler{store: store, limiter: limiter, pub: pub, logger: logger}
}

// CreateRequest is the body for POST /tenants.
type CreateRequest struct {
	Name string `json:"name" binding:"required,nonblank"`
	Slug string `json:"slug" binding:"required"`
}

// UpdateRequest is the body for PATCH /tenants/:tenantId.
type UpdateRequest struct {
	Name        *string `json:"name"`
	PriceTierID *string `json:"price_tier_id"`
}

// AddMemberRequest is the body for POST /tenants/:tenantId/members.
type AddMemberRequest struct {
	Email string            `json:"email" binding:"required,email"`
	Role  models.TenantRole `json:"role"`
}

// UpdateMemberRequest is the body for PATCH /tenants/:tenantId/members/:userId.
type UpdateMemberRequest struct {
	Role models.TenantRole `json:"role" binding:"required"`
}

// JoinRequest is the body for POST /tenants/join.
type JoinRequest struct {
	Slug string `json:"slug" binding:"required"`
}

// Create handles POST /tenants. The creator becomes owner; the tenant starts on the default tier.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !slugRegex.MatchString(slug) {
		response.BadRequest(c, "slug must be 2-64 lowercase letters, digits or dashes")
		return
	}
	t := &models.Tenant{Name: strings.TrimSpace(req.Name), Slug: slug, PriceTierID: pricing.DefaultTier}
	if err := h.store.Create(c.Request.Context(), t, middleware.UserID(c)); err != nil {
		if errors.Is(err, models.ErrConflict) {
			response.Conflict(c, "slug already taken")
			return
		}
		h.logger.Error("create tenant", zap.Error(err))
		response.Internal(c, "failed to create tenant")
		return
	}
	response.Created(c, models.TenantWithRole{Tenant: *t, Role: models.TenantRoleOwner})
}

// List handles GET /tenants: the caller's tenants with their role in each.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.ListForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.logger.Error("list tenants", zap.Error(err))
		response.Internal(c, "failed to list tenants")
		return
	}
	response.OK(c, list)
}

// Get handles GET /tenants/:tenantId.
func (h *Handler) Get(c *gin.Context) {
	t, err := h.store.GetByID(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		response.FromError(c, err, "failed to load tenant")
		return
	}
	response.OK(c, models.TenantWithRole{Tenant: *t, Role: middleware.TenantRole(c)})
}

// Role handles GET /tenants/:tenantId/role.
func (h *Handler) Role(c *gin.Context) {
	response.OK(c, gin.H{"role": middleware.TenantRole(c)})
}

// Update handles PATCH /tenants/:tenantId (owner only).
func (h *Handler) Update(c *gin.Context) {
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	t, err := h.store.GetByID(ctx, middleware.TenantID(c))
	if err != nil {
		response.FromError(c, err, "failed to load tenant")
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			response.BadRequest(c, "name is required")
			return
		}
		t.Name = name
	}
	if req.PriceTierID != nil {
		if _, ok := pricing.Tier(*req.PriceTierID); !ok {
			response.BadRequest(c, "unknown price tier")
			return
		}
		t.PriceTierID = *req.PriceTierID
	}
	if err := h.store.Update(ctx, t); err != nil {
		response.FromError(c, err, "failed to update tenant")
		return
	}
	h.pub.PublishChange(ctx, t.ID, realtime.EntityTenant, t.ID)
	response.OK(c, t)
}

// Delete handles DELETE /tenants/:tenantId (owner only).
func (h *Handler) Delete(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if err := h.store.Delete(c.Request.Context(), tenantID); err != nil {
		response.FromError(c, err, "failed to delete tenant")
		return
	}
	h.pub.PublishChange(c.Request.Context(), tenantID, realtime.EntityTenant, tenantID)
	response.NoContent(c)
}

// ListMembers handles GET /tenants/:tenantId/members.
func (h *Handler) ListMembers(c *gin.Context) {
	list, err := h.store.ListMembers(c.Request.Context(), middleware.TenantID(c))
	if err != nil {
		h.logger.Error("list members", zap.Error(err))
		response.Internal(c, "failed to list members")
		return
	}
	response.OK(c, list)
}

// AddMember handles POST /tenants/:tenantId/members (owner/admin). Only owners may grant owner.
func (h *Handler) AddMember(c *gin.Context) {
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Role == "" {
		req.Role = models.TenantRoleMember
	}
	if !req.Role.Valid() {
		response.BadRequest(c, "invalid role")
		return
	}
	if req.Role == models.TenantRoleOwner && middleware.TenantRole(c) != models.TenantRoleOwner {
		response.Forbidden(c, "only owners can add owners")
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	if err := h.limiter.CheckMembers(ctx, tenantID); err != nil {
		response.FromError(c, err, "failed to check limits")
		return
	}
	m, err := h.store.AddMemberByEmail(ctx, tenantID, utils.NormalizeEmail(req.Email), req.Role)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			response.NotFound(c, "no registered user with that email")
		case errors.Is(err, models.ErrConflict):
			response.Conflict(c, "already a member")
		default:
			h.logger.Error("add member", zap.Error(err), zap.String("tenant_id", tenantID.String()))
			response.Internal(c, "failed to add member")
		}
		return
	}
	h.pub.PublishChange(ctx, tenantID, realtime.EntityMember, m.UserID)
	response.Created(c, m)
}

// UpdateMember handles PATCH /tenants/:tenantId/members/:userId (owner only).
func (h *Handler) UpdateMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	var req UpdateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Role.Valid() {
		response.BadRequest(c, "invalid role")
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	if err := h.store.UpdateMemberRole(ctx, tenantID, userID, req.Role); err != nil {
		if errors.Is(err, models.ErrConflict) {
			response.Conflict(c, "a tenant needs at least one owner")
			return
		}
		response.FromError(c, err, "failed to update member")
		return
	}
	h.pub.PublishChange(ctx, tenantID, realtime.EntityMember, userID)
	response.OK(c, gin.H{"user_id": userID, "role": req.Role})
}

// RemoveMember handles DELETE /tenants/:tenantId/members/:userId. Owners remove anyone; members may leave.
func (h *Handler) RemoveMember(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.BadRequest(c, "invalid user id")
		return
	}
	if middleware.TenantRole(c) != models.TenantRoleOwner && userID != middleware.UserID(c) {
		response.Forbidden(c, "insufficient permissions")
		return
	}
	ctx := c.Request.Context()
	tenantID := middleware.TenantID(c)
	if err := h.store.RemoveMember(ctx, tenantID, userID); err != nil {
		if errors.Is(err, models.ErrConflict) {
			response.Conflict(c, "a tenant needs at least one owner")
			return
		}
		response.FromError(c, err, "failed to remove member")
		return
	}
	h.pub.PublishChange(ctx, tenantID, realtime.EntityMember, userID)
	response.NoContent(c)
}

// Join handles POST /tenants/join: the caller joins the tenant with slug as a member.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	t, err := h.store.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(req.Slug)))
	if err != nil {
		response.FromError(c, err, "failed to load tenant")
		return
	}
	if err := h.limiter.CheckMembers(ctx, t.ID); err != nil {
		response.FromError(c, err, "failed to check limits")
		return
	}
	userID := middleware.UserID(c)
	if err := h.store.AddMember(ctx, t.ID, userID, models.TenantRoleMember); err != nil {
		if errors.Is(err, models.ErrConflict) {
			response.Conflict(c, "already a member")
			return
		}
		response.FromError(c, err, "failed to join tenant")
		return
	}
	h.pub.PublishChange(ctx, t.ID, realtime.EntityMember, userID)
	response.OK(c, models.TenantWithRole{Tenant: *t, Role: models.TenantRoleMember})
}

// RegisterRoutes mounts the tenant routes. t is the /tenants/:tenantId group guarded by RequireTenantMember.
func (h *Handler) RegisterRoutes(api, t *gin.RouterGroup) {
	api.POST("/tenants", h.Create)
	api.GET("/tenants", h.List)
	api.POST("/tenants/join", h.Join)

	owner := middleware.RequireRole(models.TenantRoleOwner)
	managers := middleware.RequireRole(models.TenantRoleOwner, models.TenantRoleAdmin)
	t.GET("", h.Get)
	t.GET("/role", h.Role)
	t.PATCH("", owner, h.Update)
	t.DELETE("", owner, h.Delete)
	t.GET("/members", h.ListMembers)
	t.POST("/members", managers, h.AddMember)
	t.PATCH("/members/:userId", owner, h.UpdateMember)
	t.DELETE("/members/:userId", h.RemoveMember)
}
