package editor

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congregate/backend/internal/models"
)

// fakeGateway is an in-memory backend. fail injects an error per method name.
type fakeGateway struct {
	mu       sync.Mutex
	members  []models.TenantMember
	groups   []models.Group
	services map[uuid.UUID]*models.ServiceDetail
	owners   map[uuid.UUID][]models.ServiceEventOwner
	fail     map[string]error
	calls    []string

	created []ServiceInput
	events  []EventInput
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		services: map[uuid.UUID]*models.ServiceDetail{},
		owners:   map[uuid.UUID][]models.ServiceEventOwner{},
		fail:     map[string]error{},
	}
}

func (g *fakeGateway) call(name string) error {
	g.calls = append(g.calls, name)
	return g.fail[name]
}

func (g *fakeGateway) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) addService(tenantID uuid.UUID, name string, start, end *string) *models.ServiceDetail {
	d := &models.ServiceDetail{Service: models.Service{
		ID: uuid.New(), TenantID: tenantID, Name: name, DefaultStartTime: start, DefaultEndTime: end,
	}}
	g.services[d.ID] = d
	return d
}

func (g *fakeGateway) service(id uuid.UUID) (*models.ServiceDetail, error) {
	d, ok := g.services[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return d, nil
}

func (g *fakeGateway) ListMembers(_ context.Context, _ uuid.UUID) ([]models.TenantMember, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListMembers"); err != nil {
		return nil, err
	}
	return slices.Clone(g.members), nil
}

func (g *fakeGateway) ListGroups(_ context.Context, _ uuid.UUID) ([]models.Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListGroups"); err != nil {
		return nil, err
	}
	return slices.Clone(g.groups), nil
}

func (g *fakeGateway) ListServices(_ context.Context, tenantID uuid.UUID) ([]models.ServiceListItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListServices"); err != nil {
		return nil, err
	}
	var out []models.ServiceListItem
	for _, d := range g.services {
		if d.TenantID == tenantID {
			out = append(out, models.ServiceListItem{Service: d.Service, CanManage: true})
		}
	}
	return out, nil
}

func (g *fakeGateway) GetService(_ context.Context, id uuid.UUID) (*models.ServiceDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("GetService"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}

func (g *fakeGateway) CreateService(_ context.Context, tenantID uuid.UUID, in ServiceInput) (*models.ServiceDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateService"); err != nil {
		return nil, err
	}
	g.created = append(g.created, in)
	d := &models.ServiceDetail{Service: models.Service{
		ID: uuid.New(), TenantID: tenantID, Name: in.Fields.Name,
		DefaultStartTime: in.Fields.DefaultStartTime, DefaultEndTime: in.Fields.DefaultEndTime,
	}, AdminIDs: in.AdminIDs, GroupIDs: in.GroupIDs}
	g.services[d.ID] = d
	return d, nil
}

func (g *fakeGateway) UpdateService(_ context.Context, id uuid.UUID, f models.ServiceFields) (*models.Service, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("UpdateService"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	d.Name, d.DefaultStartTime, d.DefaultEndTime = f.Name, f.DefaultStartTime, f.DefaultEndTime
	s := d.Service
	return &s, nil
}

func (g *fakeGateway) ListServiceAdmins(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListServiceAdmins"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.AdminIDs), nil
}

func (g *fakeGateway) AddServiceAdmin(_ context.Context, id, userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("AddServiceAdmin"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	if !slices.Contains(d.AdminIDs, userID) {
		d.AdminIDs = append(d.AdminIDs, userID)
	}
	return nil
}

func (g *fakeGateway) RemoveServiceAdmin(_ context.Context, id, userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("RemoveServiceAdmin"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	d.AdminIDs = slices.DeleteFunc(d.AdminIDs, func(u uuid.UUID) bool { return u == userID })
	return nil
}

func (g *fakeGateway) ListServiceGroups(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListServiceGroups"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.GroupIDs), nil
}

func (g *fakeGateway) AddServiceGroup(_ context.Context, id, groupID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("AddServiceGroup"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	if !slices.Contains(d.GroupIDs, groupID) {
		d.GroupIDs = append(d.GroupIDs, groupID)
	}
	return nil
}

func (g *fakeGateway) RemoveServiceGroup(_ context.Context, id, groupID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("RemoveServiceGroup"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	d.GroupIDs = slices.DeleteFunc(d.GroupIDs, func(u uuid.UUID) bool { return u == groupID })
	return nil
}

func (g *fakeGateway) ListServiceNotes(_ context.Context, id uuid.UUID) ([]models.ServiceNote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListServiceNotes"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.Notes), nil
}

func (g *fakeGateway) UpsertServiceNote(_ context.Context, id uuid.UUID, n models.NoteDraft) (*models.ServiceNote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("UpsertServiceNote"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	row := models.ServiceNote{ID: n.ID, ServiceID: id, TenantID: d.TenantID, Text: n.Text, Link: n.Link, Position: len(d.Notes)}
	if i := slices.IndexFunc(d.Notes, func(x models.ServiceNote) bool { return x.ID == n.ID }); i >= 0 {
		row.Position = d.Notes[i].Position
		d.Notes[i] = row
	} else {
		d.Notes = append(d.Notes, row)
	}
	return &row, nil
}

func (g *fakeGateway) DeleteServiceNote(_ context.Context, id, noteID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("DeleteServiceNote"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	d.Notes = slices.DeleteFunc(d.Notes, func(x models.ServiceNote) bool { return x.ID == noteID })
	return nil
}

func (g *fakeGateway) ListServiceRoles(_ context.Context, id uuid.UUID) ([]models.ServiceRole, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("ListServiceRoles"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	return slices.Clone(d.Roles), nil
}

func (g *fakeGateway) UpsertServiceRole(_ context.Context, id uuid.UUID, r models.RoleDraft) (*models.ServiceRole, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("UpsertServiceRole"); err != nil {
		return nil, err
	}
	d, err := g.service(id)
	if err != nil {
		return nil, err
	}
	row := models.ServiceRole{ID: r.ID, ServiceID: id, TenantID: d.TenantID, Name: r.Name, Description: r.Description, Position: len(d.Roles)}
	if i := slices.IndexFunc(d.Roles, func(x models.ServiceRole) bool { return x.ID == r.ID }); i >= 0 {
		row.Position = d.Roles[i].Position
		d.Roles[i] = row
	} else {
		d.Roles = append(d.Roles, row)
	}
	return &row, nil
}

func (g *fakeGateway) DeleteServiceRole(_ context.Context, id, roleID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("DeleteServiceRole"); err != nil {
		return err
	}
	d, err := g.service(id)
	if err != nil {
		return err
	}
	d.Roles = slices.DeleteFunc(d.Roles, func(x models.ServiceRole) bool { return x.ID == roleID })
	return nil
}

func (g *fakeGateway) EventOwners(_ context.Context, eventID uuid.UUID) ([]models.ServiceEventOwner, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("EventOwners"); err != nil {
		return nil, err
	}
	return slices.Clone(g.owners[eventID]), nil
}

func (g *fakeGateway) CreateEvent(_ context.Context, tenantID uuid.UUID, in EventInput) (*models.ServiceEventRow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("CreateEvent"); err != nil {
		return nil, err
	}
	g.events = append(g.events, in)
	return g.row(uuid.New(), tenantID, in), nil
}

func (g *fakeGateway) UpdateEvent(_ context.Context, eventID uuid.UUID, in EventInput) (*models.ServiceEventRow, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("UpdateEvent"); err != nil {
		return nil, err
	}
	g.events = append(g.events, in)
	return g.row(eventID, uuid.Nil, in), nil
}

func (g *fakeGateway) row(id, tenantID uuid.UUID, in EventInput) *models.ServiceEventRow {
	ev := models.ServiceEvent{
		ID: id, ServiceID: in.ServiceID, TenantID: tenantID,
		Date: in.Fields.Date, StartTime: in.Fields.StartTime, EndTime: in.Fields.EndTime,
		Subtitle: in.Fields.Subtitle, CopiedFromEventID: in.SourceEventID,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	owners := make([]models.ServiceEventOwner, 0, len(in.Owners))
	for _, o := range in.Owners {
		owners = append(owners, models.ServiceEventOwner{ServiceEventID: id, UserID: o.UserID, ServiceRoleID: o.RoleID})
	}
	g.owners[id] = owners
	return &models.ServiceEventRow{ServiceEvent: ev, Owners: owners, CanManage: true}
}
