package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a recurring ministry type (e.g. "Sunday Worship") owned by a tenant.
type Service struct {
	ID               uuid.UUID `json:"id"`
	TenantID         uuid.UUID `json:"tenant_id"`
	Name             string    `json:"name"`
	DefaultStartTime *string   `json:"default_start_time,omitempty"` // HH:MM
	DefaultEndTime   *string   `json:"default_end_time,omitempty"`   // HH:MM
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ServiceNote is a persisted note row. ID is generated by the client on creation and stays
// stable across edits; Position fixes display order at creation time.
type ServiceNote struct {
	ID        uuid.UUID `json:"id"`
	ServiceID uuid.UUID `json:"service_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Text      string    `json:"text"`
	Link      *string   `json:"link,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceRole is a persisted role row ("Worship leader", "Usher"), keyed like ServiceNote.
type ServiceRole struct {
	ID          uuid.UUID `json:"id"`
	ServiceID   uuid.UUID `json:"service_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ServiceDetail is a service with all of its dependent collections.
type ServiceDetail struct {
	Service
	AdminIDs []uuid.UUID   `json:"admin_ids"`
	GroupIDs []uuid.UUID   `json:"group_ids"`
	Notes    []ServiceNote `json:"notes"`
	Roles    []ServiceRole `json:"roles"`
}

// ServiceListItem is one row of the service list, gated for the viewer.
type ServiceListItem struct {
	Service
	CanManage bool `json:"can_manage"`
}
