package editor

import (
	"context"
	"errors"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/validation"
)

// ErrServiceLocked is returned when the service of an existing event would change.
var ErrServiceLocked = errors.New("service cannot change while editing an event")

// EventInitial pre-fills an event form. When present, service selection keeps these times
// instead of applying the service defaults.
type EventInitial struct {
	ServiceID uuid.UUID
	Date      string
	StartTime string
	EndTime   string
	Subtitle  *string
}

// EventForm is the state of the service event create/copy/edit form.
type EventForm struct {
	TenantID      uuid.UUID
	Mode          models.EventMode
	EventID       *uuid.UUID
	SourceEventID *uuid.UUID

	ServiceID uuid.UUID
	Date      string
	StartTime string
	EndTime   string
	Subtitle  string
	Owners    []models.OwnerAssignment

	// Pick lists.
	Services []models.ServiceListItem
	Members  []models.TenantMember
	Roles    []models.ServiceRole

	ServiceLocked bool
	Errors        validation.FieldErrors
	IsSubmitting  bool

	initial *EventInitial
	deps    Deps
}

// NewEventForm starts a create-mode form, optionally pre-filled.
func NewEventForm(deps Deps, tenantID uuid.UUID, initial *EventInitial) *EventForm {
	f := &EventForm{TenantID: tenantID, Mode: models.EventModeCreate, initial: initial, deps: deps.withDefaults()}
	f.Reset()
	return f
}

// CopyEventForm starts a form pre-filled from src that submits as a new event.
func CopyEventForm(deps Deps, src models.ServiceEvent) *EventForm {
	id := src.ID
	f := &EventForm{
		TenantID:      src.TenantID,
		Mode:          models.EventModeCopy,
		SourceEventID: &id,
		initial:       initialFrom(src),
		deps:          deps.withDefaults(),
	}
	f.Reset()
	return f
}

// EditEventForm starts a form for ev. The service is locked.
func EditEventForm(deps Deps, ev models.ServiceEvent) *EventForm {
	id := ev.ID
	f := &EventForm{
		TenantID:      ev.TenantID,
		Mode:          models.EventModeEdit,
		EventID:       &id,
		ServiceLocked: true,
		initial:       initialFrom(ev),
		deps:          deps.withDefaults(),
	}
	f.Reset()
	return f
}

func initialFrom(ev models.ServiceEvent) *EventInitial {
	return &EventInitial{
		ServiceID: ev.ServiceID,
		Date:      ev.Date,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		Subtitle:  ev.Subtitle,
	}
}

// Reset restores the initial values and clears owners and errors.
func (f *EventForm) Reset() {
	f.ServiceID = uuid.Nil
	f.Date, f.StartTime, f.EndTime, f.Subtitle = "", "", "", ""
	if in := f.initial; in != nil {
		f.ServiceID = in.ServiceID
		f.Date, f.StartTime, f.EndTime = in.Date, in.StartTime, in.EndTime
		f.Subtitle = deref(in.Subtitle)
	}
	f.Owners = nil
	f.Roles = nil
	f.Errors = nil
	f.IsSubmitting = false
}

// ownerSource is the event whose owners pre-load the form.
func (f *EventForm) ownerSource() *uuid.UUID {
	if f.EventID != nil {
		return f.EventID
	}
	return f.SourceEventID
}

// Open loads the pick lists, the roles of the pre-selected service and, for copy and edit,
// the existing owners. Fetches fail independently.
func (f *EventForm) Open(ctx context.Context) {
	var (
		services []models.ServiceListItem
		members  []models.TenantMember
		detail   *models.ServiceDetail
		owners   []models.ServiceEventOwner
		ownerErr error
	)
	gw, log := f.deps.Gateway, f.deps.Logger
	var g errgroup.Group
	g.Go(func() error {
		var err error
		if services, err = gw.ListServices(ctx, f.TenantID); err != nil {
			log.Warn("load services", zap.Error(err), zap.String("tenant_id", f.TenantID.String()))
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if members, err = gw.ListMembers(ctx, f.TenantID); err != nil {
			log.Warn("load members", zap.Error(err), zap.String("tenant_id", f.TenantID.String()))
		}
		return nil
	})
	if f.ServiceID != uuid.Nil {
		id := f.ServiceID
		g.Go(func() error {
			var err error
			if detail, err = gw.GetService(ctx, id); err != nil {
				log.Warn("load service", zap.Error(err), zap.String("service_id", id.String()))
			}
			return nil
		})
	}
	if src := f.ownerSource(); src != nil {
		id := *src
		g.Go(func() error {
			owners, ownerErr = gw.EventOwners(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	f.Services, f.Members = services, members
	if detail != nil {
		f.Roles = detail.Roles
	}
	if ownerErr != nil {
		_ = f.deps.fail(ownerErr, "Events.LoadFailed", "load event owners", zap.String("event_id", f.ownerSource().String()))
		return
	}
	f.Owners = make([]models.OwnerAssignment, 0, len(owners))
	for _, o := range owners {
		f.addOwner(o.Assignment())
	}
}

// SelectService switches the event to another service. Owners are cleared because their roles
// belong to the previous service; times take the new service's defaults unless the form was
// opened with initial values.
func (f *EventForm) SelectService(ctx context.Context, serviceID uuid.UUID) error {
	if serviceID == f.ServiceID {
		return nil
	}
	if f.ServiceLocked {
		return ErrServiceLocked
	}
	f.ServiceID = serviceID
	f.Owners = nil
	f.Roles = nil
	detail, err := f.deps.Gateway.GetService(ctx, serviceID)
	if err != nil {
		return f.deps.fail(err, "Events.LoadFailed", "load service", zap.String("service_id", serviceID.String()))
	}
	f.Roles = detail.Roles
	if f.initial == nil {
		f.StartTime = deref(detail.DefaultStartTime)
		f.EndTime = deref(detail.DefaultEndTime)
	}
	return nil
}

// AddOwner assigns a member to a role. Repeating a (user, role) pair is a no-op and reports false.
func (f *EventForm) AddOwner(userID, roleID uuid.UUID) bool {
	if userID == uuid.Nil || roleID == uuid.Nil {
		return false
	}
	return f.addOwner(models.OwnerAssignment{UserID: userID, RoleID: roleID})
}

func (f *EventForm) addOwner(o models.OwnerAssignment) bool {
	if slices.Contains(f.Owners, o) {
		return false
	}
	f.Owners = append(f.Owners, o)
	return true
}

// RemoveOwner drops one assignment if present.
func (f *EventForm) RemoveOwner(userID, roleID uuid.UUID) {
	o := models.OwnerAssignment{UserID: userID, RoleID: roleID}
	if i := slices.Index(f.Owners, o); i >= 0 {
		f.Owners = slices.Delete(f.Owners, i, i+1)
	}
}

// Input validates the form into a submission. Failures are kept in Errors.
func (f *EventForm) Input() (EventInput, error) {
	f.Errors = nil
	fields, err := models.NewEventFields(f.Date, f.StartTime, f.EndTime, optional(f.Subtitle))
	fe, _ := err.(validation.FieldErrors)
	if f.ServiceID == uuid.Nil {
		if fe == nil {
			fe = validation.FieldErrors{}
		}
		fe["service_id"] = validation.MsgRequired
	}
	if len(fe) > 0 {
		f.Errors = fe
		return EventInput{}, fe
	}
	if err != nil {
		return EventInput{}, err
	}
	return EventInput{
		ServiceID:     f.ServiceID,
		Fields:        fields,
		Owners:        append([]models.OwnerAssignment(nil), f.Owners...),
		Mode:          f.Mode,
		SourceEventID: f.SourceEventID,
	}, nil
}
