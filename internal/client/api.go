package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/congregate/backend/internal/editor"
	"github.com/congregate/backend/internal/models"
)

var _ editor.Gateway = (*Client)(nil)

// Session is a login result.
type Session struct {
	Token string            `json:"token"`
	User  models.UserPublic `json:"user"`
}

// Login exchanges credentials for a token. The client keeps using its own token.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/auth/login", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Me returns the caller.
func (c *Client) Me(ctx context.Context) (*models.UserPublic, error) {
	var u models.UserPublic
	if err := c.get(ctx, "/auth/me", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func tenantPath(tenantID uuid.UUID, rest string) string {
	return "/tenants/" + tenantID.String() + rest
}

func servicePath(serviceID uuid.UUID, rest string) string {
	return "/services/" + serviceID.String() + rest
}

func (c *Client) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.TenantMember, error) {
	var out []models.TenantMember
	if err := c.get(ctx, tenantPath(tenantID, "/members"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListGroups(ctx context.Context, tenantID uuid.UUID) ([]models.Group, error) {
	var out []models.Group
	if err := c.get(ctx, tenantPath(tenantID, "/groups"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TenantRole returns the caller's role in the tenant.
func (c *Client) TenantRole(ctx context.Context, tenantID uuid.UUID) (models.TenantRole, error) {
	var out struct {
		Role models.TenantRole `json:"role"`
	}
	if err := c.get(ctx, tenantPath(tenantID, "/role"), &out); err != nil {
		return "", err
	}
	return out.Role, nil
}

type noteBody struct {
	ID   uuid.UUID `json:"id"`
	Text string    `json:"text"`
	Link *string   `json:"link,omitempty"`
}

type roleBody struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

type createServiceBody struct {
	models.ServiceFields
	AdminIDs []uuid.UUID `json:"admin_ids"`
	GroupIDs []uuid.UUID `json:"group_ids"`
	Notes    []noteBody  `json:"notes"`
	Roles    []roleBody  `json:"roles"`
}

func (c *Client) ListServices(ctx context.Context, tenantID uuid.UUID) ([]models.ServiceListItem, error) {
	var out []models.ServiceListItem
	if err := c.get(ctx, tenantPath(tenantID, "/services"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetService(ctx context.Context, serviceID uuid.UUID) (*models.ServiceDetail, error) {
	var out models.ServiceDetail
	if err := c.get(ctx, servicePath(serviceID, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateService(ctx context.Context, tenantID uuid.UUID, in editor.ServiceInput) (*models.ServiceDetail, error) {
	body := createServiceBody{
		ServiceFields: in.Fields,
		AdminIDs:      in.AdminIDs,
		GroupIDs:      in.GroupIDs,
		Notes:         make([]noteBody, 0, len(in.Notes)),
		Roles:         make([]roleBody, 0, len(in.Roles)),
	}
	for _, n := range in.Notes {
		body.Notes = append(body.Notes, noteBody(n))
	}
	for _, r := range in.Roles {
		body.Roles = append(body.Roles, roleBody(r))
	}
	var out models.ServiceDetail
	if err := c.post(ctx, tenantPath(tenantID, "/services"), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateService(ctx context.Context, serviceID uuid.UUID, f models.ServiceFields) (*models.Service, error) {
	var out models.Service
	if err := c.patch(ctx, servicePath(serviceID, ""), f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteService(ctx context.Context, serviceID uuid.UUID) error {
	return c.delete(ctx, servicePath(serviceID, ""))
}

func (c *Client) ListServiceAdmins(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	if err := c.get(ctx, servicePath(serviceID, "/admins"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddServiceAdmin(ctx context.Context, serviceID, userID uuid.UUID) error {
	return c.put(ctx, servicePath(serviceID, "/admins/"+userID.String()), nil, nil)
}

func (c *Client) RemoveServiceAdmin(ctx context.Context, serviceID, userID uuid.UUID) error {
	return c.delete(ctx, servicePath(serviceID, "/admins/"+userID.String()))
}

func (c *Client) ListServiceGroups(ctx context.Context, serviceID uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	if err := c.get(ctx, servicePath(serviceID, "/groups"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AddServiceGroup(ctx context.Context, serviceID, groupID uuid.UUID) error {
	return c.put(ctx, servicePath(serviceID, "/groups/"+groupID.String()), nil, nil)
}

func (c *Client) RemoveServiceGroup(ctx context.Context, serviceID, groupID uuid.UUID) error {
	return c.delete(ctx, servicePath(serviceID, "/groups/"+groupID.String()))
}

func (c *Client) ListServiceNotes(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceNote, error) {
	var out []models.ServiceNote
	if err := c.get(ctx, servicePath(serviceID, "/notes"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpsertServiceNote(ctx context.Context, serviceID uuid.UUID, d models.NoteDraft) (*models.ServiceNote, error) {
	var out models.ServiceNote
	if err := c.put(ctx, servicePath(serviceID, "/notes/"+d.ID.String()), noteBody(d), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteServiceNote(ctx context.Context, serviceID, noteID uuid.UUID) error {
	return c.delete(ctx, servicePath(serviceID, "/notes/"+noteID.String()))
}

func (c *Client) ListServiceRoles(ctx context.Context, serviceID uuid.UUID) ([]models.ServiceRole, error) {
	var out []models.ServiceRole
	if err := c.get(ctx, servicePath(serviceID, "/roles"), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpsertServiceRole(ctx context.Context, serviceID uuid.UUID, d models.RoleDraft) (*models.ServiceRole, error) {
	var out models.ServiceRole
	if err := c.put(ctx, servicePath(serviceID, "/roles/"+d.ID.String()), roleBody(d), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteServiceRole(ctx context.Context, serviceID, roleID uuid.UUID) error {
	return c.delete(ctx, servicePath(serviceID, "/roles/"+roleID.String()))
}

// EventFilter narrows ListEvents. Dates are YYYY-MM-DD.
type EventFilter struct {
	ServiceID *uuid.UUID
	From      string
	To        string
}

func (f EventFilter) query() string {
	q := url.Values{}
	if f.ServiceID != nil {
		q.Set("service_id", f.ServiceID.String())
	}
	if f.From != "" {
		q.Set("from", f.From)
	}
	if f.To != "" {
		q.Set("to", f.To)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

type eventBody struct {
	ServiceID     uuid.UUID                `json:"service_id"`
	Date          string                   `json:"date"`
	StartTime     string                   `json:"start_time"`
	EndTime       string                   `json:"end_time"`
	Subtitle      *string                  `json:"subtitle,omitempty"`
	Owners        []models.OwnerAssignment `json:"owners"`
	Mode          models.EventMode         `json:"mode,omitempty"`
	SourceEventID *uuid.UUID               `json:"source_event_id,omitempty"`
}

func newEventBody(in editor.EventInput) eventBody {
	owners := in.Owners
	if owners == nil {
		owners = []models.OwnerAssignment{}
	}
	return eventBody{
		ServiceID:     in.ServiceID,
		Date:          in.Fields.Date,
		StartTime:     in.Fields.StartTime,
		EndTime:       in.Fields.EndTime,
		Subtitle:      in.Fields.Subtitle,
		Owners:        owners,
		Mode:          in.Mode,
		SourceEventID: in.SourceEventID,
	}
}

func (c *Client) ListEvents(ctx context.Context, tenantID uuid.UUID, f EventFilter) ([]models.ServiceEventRow, error) {
	var out []models.ServiceEventRow
	if err := c.get(ctx, tenantPath(tenantID, "/events"+f.query()), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetEvent(ctx context.Context, eventID uuid.UUID) (*models.ServiceEventRow, error) {
	var out models.ServiceEventRow
	if err := c.get(ctx, "/events/"+eventID.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) EventOwners(ctx context.Context, eventID uuid.UUID) ([]models.ServiceEventOwner, error) {
	var out []models.ServiceEventOwner
	if err := c.get(ctx, "/events/"+eventID.String()+"/owners", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BatchEventOwners fetches owners for many events in one round trip, keyed by event id.
func (c *Client) BatchEventOwners(ctx context.Context, eventIDs []uuid.UUID) (map[uuid.UUID][]models.ServiceEventOwner, error) {
	out := map[uuid.UUID][]models.ServiceEventOwner{}
	body := map[string][]uuid.UUID{"event_ids": eventIDs}
	if err := c.post(ctx, "/events/owners/batch", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateEvent submits create and copy modes.
func (c *Client) CreateEvent(ctx context.Context, tenantID uuid.UUID, in editor.EventInput) (*models.ServiceEventRow, error) {
	if in.Mode == models.EventModeEdit {
		return nil, fmt.Errorf("create event: mode %q is not a create mode", in.Mode)
	}
	var out models.ServiceEventRow
	if err := c.post(ctx, tenantPath(tenantID, "/events"), newEventBody(in), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEvent(ctx context.Context, eventID uuid.UUID, in editor.EventInput) (*models.ServiceEventRow, error) {
	body := newEventBody(in)
	body.Mode, body.SourceEventID = "", nil
	var out models.ServiceEventRow
	if err := c.patch(ctx, "/events/"+eventID.String(), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, eventID uuid.UUID) error {
	return c.delete(ctx, "/events/"+eventID.String())
}
