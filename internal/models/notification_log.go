package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType for delivery automation.
const (
	NotificationTypeOwnerAssigned = "owner_assigned"
)

// NotificationStatus for delivery.
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// NotificationLog records an assignment notification and its delivery outcome.
type NotificationLog struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenant_id"`
	ServiceEventID *uuid.UUID `json:"service_event_id,omitempty"`
	ServiceRoleID  *uuid.UUID `json:"service_role_id,omitempty"`
	UserID         uuid.UUID  `json:"user_id"`
	Type           string     `json:"type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Assignment is everything an owner_assigned notification says: who, which service and event, which role.
type Assignment struct {
	TenantName    string
	RecipientName string
	Recipient     string
	ServiceName   string
	RoleName      string
	Date          string
	StartTime     string
	EndTime       string
	Subtitle      *string
}
