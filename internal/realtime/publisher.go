package realtime

import (
	"context"

	"github.com/google/uuid"
)

// Entities named in change signals. The event name is "<entity>.changed".
const (
	EntityTenant       = "tenant"
	EntityMember       = "member"
	EntityGroup        = "group"
	EntityGroupMember  = "group_member"
	EntityService      = "service"
	EntityServiceAdmin = "service_admin"
	EntityServiceGroup = "service_group"
	EntityServiceNote  = "service_note"
	EntityServiceRole  = "service_role"
	EntityEvent        = "event"
	EntityResource     = "resource"
)

// Publisher tells a tenant's connected clients that a list changed and should be refetched.
type Publisher interface {
	PublishChange(ctx context.Context, tenantID uuid.UUID, entity string, id uuid.UUID)
}

// Discard is a Publisher that drops every signal.
var Discard Publisher = discard{}

type discard struct{}

func (discard) PublishChange(context.Context, uuid.UUID, string, uuid.UUID) {}
