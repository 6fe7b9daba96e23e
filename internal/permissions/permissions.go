// Package permissions decides which edit and delete affordances a viewer gets.
//
// Service-scoped actions are allowed for the tenant owner, or for a member listed in that
// service's admins. Tenant-wide data (members, groups, resources) is managed by owners and admins.
package permissions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/congregate/backend/internal/models"
)

// AdminLookup reports which of serviceIDs list userID as a service admin, in one round trip.
type AdminLookup interface {
	AdminServiceIDs(ctx context.Context, userID uuid.UUID, serviceIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// Checker resolves manage rights for whole pages of rows at once.
type Checker struct {
	admins AdminLookup
}

// NewChecker creates a checker.
func NewChecker(admins AdminLookup) *Checker {
	return &Checker{admins: admins}
}

// CanManageServices returns, per service id, whether the viewer may edit or delete it and its events.
// Owners are granted every row without a lookup; everyone else costs a single batched query.
func (c *Checker) CanManageServices(ctx context.Context, role models.TenantRole, userID uuid.UUID, serviceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(serviceIDs))
	if role == models.TenantRoleOwner {
		for _, id := range serviceIDs {
			out[id] = true
		}
		return out, nil
	}
	ids := unique(serviceIDs)
	for _, id := range ids {
		out[id] = false
	}
	if len(ids) == 0 || !role.Valid() {
		return out, nil
	}
	admin, err := c.admins.AdminServiceIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("service admin lookup: %w", err)
	}
	for id := range admin {
		if _, ok := out[id]; ok {
			out[id] = admin[id]
		}
	}
	return out, nil
}

// CanManageService is CanManageServices for one row.
func (c *Checker) CanManageService(ctx context.Context, role models.TenantRole, userID, serviceID uuid.UUID) (bool, error) {
	m, err := c.CanManageServices(ctx, role, userID, []uuid.UUID{serviceID})
	if err != nil {
		return false, err
	}
	return m[serviceID], nil
}

// CanCreateService reports whether role may create services.
func CanCreateService(role models.TenantRole) bool {
	return role == models.TenantRoleOwner
}

// CanManageTenantData reports whether role may manage members, groups and resources.
func CanManageTenantData(role models.TenantRole) bool {
	return role == models.TenantRoleOwner || role == models.TenantRoleAdmin
}

func unique(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
