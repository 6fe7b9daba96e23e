package models

import (
	"time"

	"github.com/google/uuid"
)

// ServiceEvent is one dated occurrence of a service.
type ServiceEvent struct {
	ID                uuid.UUID  `json:"id"`
	ServiceID         uuid.UUID  `json:"service_id"`
	TenantID          uuid.UUID  `json:"tenant_id"`
	Date              string     `json:"date"`       // YYYY-MM-DD
	StartTime         string     `json:"start_time"` // HH:MM
	EndTime           string     `json:"end_time"`   // HH:MM
	Subtitle          *string    `json:"subtitle,omitempty"`
	CopiedFromEventID *uuid.UUID `json:"copied_from_event_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// OwnerAssignment says "this person fills this role". Unique per event.
type OwnerAssignment struct {
	UserID uuid.UUID `json:"user_id"`
	RoleID uuid.UUID `json:"role_id"`
}

// ServiceEventOwner is a persisted owner assignment.
type ServiceEventOwner struct {
	ServiceEventID uuid.UUID `json:"service_event_id"`
	UserID         uuid.UUID `json:"user_id"`
	ServiceRoleID  uuid.UUID `json:"service_role_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Assignment returns the (user, role) pair of the owner row.
func (o ServiceEventOwner) Assignment() OwnerAssignment {
	return OwnerAssignment{UserID: o.UserID, RoleID: o.ServiceRoleID}
}

// ServiceEventRow is one row of the event list with owners embedded and gating resolved.
type ServiceEventRow struct {
	ServiceEvent
	Owners    []ServiceEventOwner `json:"owners"`
	CanManage bool                `json:"can_manage"`
}

// EventMode marks how an event submission was produced.
type EventMode string

const (
	EventModeCreate EventMode = "create"
	EventModeCopy   EventMode = "copy"
	EventModeEdit   EventMode = "edit"
)
