// Package editor is a headless rendition of the service and service event editors: form state,
// per-tab collection editors and dialog shells, persisted through an injected Gateway.
package editor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/models"
)

// ServiceInput is everything a new service is created with.
type ServiceInput struct {
	Fields   models.ServiceFields
	AdminIDs []uuid.UUID
	GroupIDs []uuid.UUID
	Notes    []models.NoteDraft
	Roles    []models.RoleDraft
}

// EventInput is a service event submission.
type EventInput struct {
	ServiceID     uuid.UUID
	Fields        models.EventFields
	Owners        []models.OwnerAssignment
	Mode          models.EventMode
	SourceEventID *uuid.UUID
}

// DirectoryGateway lists the tenant-wide pick lists.
type DirectoryGateway interface {
	ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantMember, error)
	ListGroups(ctx context.Context, tenantID uuid.UUID) ([]models.Group, error)
}

// ServiceGateway persists services and their dependent collections one row at a time.
type ServiceGateway interface {
	ListServices(ctx context.Context, tenantID uuid.UUID) ([]models.ServiceListItem, error)
	GetService(ctx context.Context, serviceID uuid.UUID) (*models.ServiceDetail, error)
	CreateService(ctx context.Context, tenantID uuid.UUID, in ServiceInput) (*models.ServiceDetail, error)
	UpdateService(ctx context.Context, serviceID uuid.UUID, f models.ServiceFields) (*models.Service, error)

	ListServiceAdmins(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	AddServiceAdmin(ctx context.Context, serviceID, userID uuid.UUID) error
	RemoveServiceAdmin(ctx context.Context, serviceID, userID uuid.UUID) error

	ListServiceGroups(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error)
	AddServiceGroup(ctx context.Context, serviceID, groupID uuid.UUID) error
	RemoveServiceGroup(ctx context.Context, serviceID, groupID uuid.UUID) error

	ListServiceNotes(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceNote, error)
	UpsertServiceNote(ctx context.Context, serviceID uuid.UUID, d models.NoteDraft) (*models.ServiceNote, error)
	DeleteServiceNote(ctx context.Context, serviceID, noteID uuid.UUID) error

	ListServiceRoles(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceRole, error)
	UpsertServiceRole(ctx context.Context, serviceID uuid.UUID, d models.RoleDraft) (*models.ServiceRole, error)
	DeleteServiceRole(ctx context.Context, serviceID, roleID uuid.UUID) error
}

// EventGateway persists service events.
type EventGateway interface {
	EventOwners(ctx context.Context, eventID uuid.UUID) ([]models.ServiceEventOwner, error)
	CreateEvent(ctx context.Context, tenantID uuid.UUID, in EventInput) (*models.ServiceEventRow, error)
	UpdateEvent(ctx context.Context, eventID uuid.UUID, in EventInput) (*models.ServiceEventRow, error)
}

// Gateway is the full persistence surface the editors use.
type Gateway interface {
	DirectoryGateway
	ServiceGateway
	EventGateway
}

// Deps are shared by every form and dialog. Only Gateway is required.
type Deps struct {
	Gateway    Gateway
	Toaster    Toaster
	Translator Translator
	Logger     *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Toaster == nil {
		d.Toaster = DiscardToasts
	}
	if d.Translator == nil {
		d.Translator = English()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// fail logs err, raises a destructive toast and returns err.
func (d Deps) fail(err error, titleKey, msg string, fields ...zap.Field) error {
	d.Logger.Error(msg, append(fields, zap.Error(err))...)
	d.Toaster.Toast(Toast{
		Title:       d.Translator.T(titleKey, nil),
		Description: describe(d.Translator, err),
		Variant:     VariantDestructive,
	})
	return err
}

func (d Deps) succeed(titleKey, descKey string, params map[string]any) {
	d.Toaster.Toast(Toast{
		Title:       d.Translator.T(titleKey, params),
		Description: d.Translator.T(descKey, params),
		Variant:     VariantDefault,
	})
}
