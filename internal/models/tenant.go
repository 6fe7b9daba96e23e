package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a church or organization account, the top-level multi-tenancy boundary.
type Tenant struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	PriceTierID string    `json:"price_tier_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TenantRole is the role of a user in a tenant.
type TenantRole string

const (
	TenantRoleOwner  TenantRole = "owner"
	TenantRoleAdmin  TenantRole = "admin"
	TenantRoleMember TenantRole = "member"
)

// Valid reports whether r is one of the known tenant roles.
func (r TenantRole) Valid() bool {
	switch r {
	case TenantRoleOwner, TenantRoleAdmin, TenantRoleMember:
		return true
	}
	return false
}

// TenantMember links a user to a tenant with a role, with user details for listings.
type TenantMember struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Role      TenantRole `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
}

// TenantWithRole is a tenant as seen by one viewer.
type TenantWithRole struct {
	Tenant
	Role TenantRole `json:"role"`
}
