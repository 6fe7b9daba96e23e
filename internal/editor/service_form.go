package editor

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/validation"
)

// Tab is one section of the service form.
type Tab string

const (
	TabDetails Tab = "details"
	TabAdmins  Tab = "admins"
	TabGroups  Tab = "groups"
	TabNotes   Tab = "notes"
	TabRoles   Tab = "roles"
)

// Tabs lists the service form sections in display order.
var Tabs = []Tab{TabDetails, TabAdmins, TabGroups, TabNotes, TabRoles}

// ServiceForm is the state of the service create/edit form. In edit mode ServiceID is set and
// every collection change is written through immediately.
type ServiceForm struct {
	TenantID  uuid.UUID
	ServiceID *uuid.UUID

	Name             string
	DefaultStartTime string
	DefaultEndTime   string
	ActiveTab        Tab

	Members        []models.TenantMember
	Groups         []models.Group
	SelectedAdmins []uuid.UUID
	SelectedGroups []uuid.UUID
	Notes          []models.NoteDraft
	Roles          []models.RoleDraft

	// Errors holds per-field message keys from the last failed validation.
	Errors       validation.FieldErrors
	IsSubmitting bool

	initial *models.Service
	deps    Deps
}

// NewServiceForm starts an empty create-mode form.
func NewServiceForm(deps Deps, tenantID uuid.UUID) *ServiceForm {
	f := &ServiceForm{TenantID: tenantID, deps: deps.withDefaults()}
	f.Reset()
	return f
}

// EditServiceForm starts an edit-mode form for s.
func EditServiceForm(deps Deps, s models.Service) *ServiceForm {
	f := &ServiceForm{TenantID: s.TenantID, deps: deps.withDefaults(), initial: &s}
	f.Reset()
	return f
}

// Editing reports whether collection changes persist immediately.
func (f *ServiceForm) Editing() bool {
	return f.ServiceID != nil
}

// Reset returns the form to its initial values and the details tab.
func (f *ServiceForm) Reset() {
	f.Name, f.DefaultStartTime, f.DefaultEndTime = "", "", ""
	f.ServiceID = nil
	if s := f.initial; s != nil {
		id := s.ID
		f.ServiceID = &id
		f.Name = s.Name
		f.DefaultStartTime = deref(s.DefaultStartTime)
		f.DefaultEndTime = deref(s.DefaultEndTime)
	}
	f.ActiveTab = TabDetails
	f.SelectedAdmins = nil
	f.SelectedGroups = nil
	f.Notes = nil
	f.Roles = nil
	f.Errors = nil
	f.IsSubmitting = false
}

// SetTab switches the visible section. Unknown tabs are ignored.
func (f *ServiceForm) SetTab(t Tab) {
	for _, known := range Tabs {
		if known == t {
			f.ActiveTab = t
			return
		}
	}
}

// Open loads the pick lists and, in edit mode, the current collections. Each fetch fails on its
// own: a failure is logged and leaves that collection empty.
func (f *ServiceForm) Open(ctx context.Context) {
	var (
		members []models.TenantMember
		groups  []models.Group
		admins  []uuid.UUID
		linked  []uuid.UUID
		notes   []models.ServiceNote
		roles   []models.ServiceRole
	)
	gw, log := f.deps.Gateway, f.deps.Logger
	var g errgroup.Group
	soft := func(what string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				log.Warn("load "+what, zap.Error(err), zap.String("tenant_id", f.TenantID.String()))
			}
			return nil
		})
	}
	soft("members", func() (err error) { members, err = gw.ListMembers(ctx, f.TenantID); return })
	soft("groups", func() (err error) { groups, err = gw.ListGroups(ctx, f.TenantID); return })
	if f.Editing() {
		id := *f.ServiceID
		soft("service admins", func() (err error) { admins, err = gw.ListServiceAdmins(ctx, id); return })
		soft("service groups", func() (err error) { linked, err = gw.ListServiceGroups(ctx, id); return })
		soft("service notes", func() (err error) { notes, err = gw.ListServiceNotes(ctx, id); return })
		soft("service roles", func() (err error) { roles, err = gw.ListServiceRoles(ctx, id); return })
	}
	_ = g.Wait()

	f.Members, f.Groups = members, groups
	if !f.Editing() {
		return
	}
	f.SelectedAdmins, f.SelectedGroups = admins, linked
	f.Notes = make([]models.NoteDraft, 0, len(notes))
	for _, n := range notes {
		f.Notes = append(f.Notes, n.Draft())
	}
	f.Roles = make([]models.RoleDraft, 0, len(roles))
	for _, r := range roles {
		f.Roles = append(f.Roles, r.Draft())
	}
}

// Fields validates the scalar inputs. Failures are kept in Errors.
func (f *ServiceForm) Fields() (models.ServiceFields, error) {
	fields, err := models.NewServiceFields(f.Name, optional(f.DefaultStartTime), optional(f.DefaultEndTime))
	f.Errors = nil
	if fe, ok := err.(validation.FieldErrors); ok {
		f.Errors = fe
		f.ActiveTab = TabDetails
	}
	return fields, err
}

func (f *ServiceForm) input(fields models.ServiceFields) ServiceInput {
	return ServiceInput{
		Fields:   fields,
		AdminIDs: append([]uuid.UUID(nil), f.SelectedAdmins...),
		GroupIDs: append([]uuid.UUID(nil), f.SelectedGroups...),
		Notes:    append([]models.NoteDraft(nil), f.Notes...),
		Roles:    append([]models.RoleDraft(nil), f.Roles...),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
