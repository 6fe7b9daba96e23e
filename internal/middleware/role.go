package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/response"
)

const (
	// ContextTenantID is the key for the tenant resolved from the path.
	ContextTenantID = "tenant_id"
	// ContextTenantRole is the key for the caller's role in that tenant.
	ContextTenantRole = "tenant_role"
)

// RoleLookup resolves a user's role in a tenant; models.ErrNotFound means not a member.
type RoleLookup interface {
	Role(ctx context.Context, tenantID, userID uuid.UUID) (models.TenantRole, error)
}

// RequireTenantMember resolves the tenant from the :tenantId path param and the caller's role in it.
// Non-members get 403. Call after JWT.
func RequireTenantMember(lookup RoleLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.Param("tenantId"))
		if err != nil {
			response.BadRequest(c, "invalid tenant id")
			c.Abort()
			return
		}
		role, err := lookup.Role(c.Request.Context(), tenantID, UserID(c))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				response.Forbidden(c, "not a member of this tenant")
			} else {
				response.Internal(c, "failed to resolve tenant role")
			}
			c.Abort()
			return
		}
		c.Set(ContextTenantID, tenantID)
		c.Set(ContextTenantRole, role)
		c.Next()
	}
}

// RequireRole returns a middleware that allows only the given tenant roles.
// Call after RequireTenantMember.
func RequireRole(roles ...models.TenantRole) gin.HandlerFunc {
	allowed := make(map[models.TenantRole]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		roleVal, ok := c.Get(ContextTenantRole)
		if !ok {
			response.Unauthorized(c, "missing tenant context")
			c.Abort()
			return
		}
		role, _ := roleVal.(models.TenantRole)
		if _, ok := allowed[role]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// TenantID returns the tenant resolved by RequireTenantMember.
func TenantID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextTenantID).(uuid.UUID)
}

// TenantRole returns the caller's role resolved by RequireTenantMember.
func TenantRole(c *gin.Context) models.TenantRole {
	return c.MustGet(ContextTenantRole).(models.TenantRole)
}
