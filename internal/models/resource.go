package models

import (
	"time"

	"github.com/google/uuid"
)

// Resource is an item in a tenant's resource library: an uploaded object or an external link.
type Resource struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Title       string    `json:"title"`
	ObjectKey   *string   `json:"object_key,omitempty"`
	URL         *string   `json:"url,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedBy   uuid.UUID `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}
