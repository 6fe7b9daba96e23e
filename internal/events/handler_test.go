package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/internal/permissions"
	"github.com/congregate/backend/internal/pricing"
	"github.com/congregate/backend/pkg/queue"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGin(); err != nil {
		panic(err)
	}
}

type memStore struct {
	events    map[uuid.UUID]*models.ServiceEvent
	owners    map[uuid.UUID][]models.OwnerAssignment
	roles     map[uuid.UUID]uuid.UUID // role -> service
	members   map[uuid.UUID]bool
	ownerHits int
}

func newMemStore() *memStore {
	return &memStore{
		events:  map[uuid.UUID]*models.ServiceEvent{},
		owners:  map[uuid.UUID][]models.OwnerAssignment{},
		roles:   map[uuid.UUID]uuid.UUID{},
		members: map[uuid.UUID]bool{},
	}
}

func (m *memStore) ListByTenant(_ context.Context, tenantID uuid.UUID, f Filter) ([]models.ServiceEvent, error) {
	out := []models.ServiceEvent{}
	for _, e := range m.events {
		if e.TenantID != tenantID || (f.ServiceID != nil && e.ServiceID != *f.ServiceID) {
			continue
		}
		if (f.From != "" && e.Date < f.From) || (f.To != "" && e.Date > f.To) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.ServiceEvent, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]models.ServiceEvent, error) {
	out := []models.ServiceEvent{}
	for _, id := range ids {
		if e, ok := m.events[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) OwnersByEvent(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.ServiceEventOwner, error) {
	m.ownerHits++
	out := map[uuid.UUID][]models.ServiceEventOwner{}
	for _, id := range ids {
		for _, o := range m.owners[id] {
			out[id] = append(out[id], models.ServiceEventOwner{ServiceEventID: id, UserID: o.UserID, ServiceRoleID: o.RoleID})
		}
	}
	return out, nil
}

func (m *memStore) InvalidOwnerRefs(_ context.Context, _, serviceID uuid.UUID, owners []models.OwnerAssignment) ([]uuid.UUID, []uuid.UUID, error) {
	var badRoles, badUsers []uuid.UUID
	for _, o := range owners {
		if m.roles[o.RoleID] != serviceID {
			badRoles = append(badRoles, o.RoleID)
		}
		if !m.members[o.UserID] {
			badUsers = append(badUsers, o.UserID)
		}
	}
	return badRoles, badUsers, nil
}

func (m *memStore) Create(_ context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) error {
	e.ID = uuid.New()
	cp := *e
	m.events[e.ID] = &cp
	m.owners[e.ID] = owners
	return nil
}

func (m *memStore) Update(_ context.Context, e *models.ServiceEvent, owners []models.OwnerAssignment) ([]models.OwnerAssignment, error) {
	cp := *e
	m.events[e.ID] = &cp
	added, _ := DiffOwners(m.owners[e.ID], owners)
	m.owners[e.ID] = owners
	return added, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.events, id)
	return nil
}

type serviceMap map[uuid.UUID]*models.Service

func (s serviceMap) GetByID(_ context.Context, id uuid.UUID) (*models.Service, error) {
	svc, ok := s[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return svc, nil
}

type adminMap map[uuid.UUID][]uuid.UUID // service -> admins

func (a adminMap) AdminServiceIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := map[uuid.UUID]bool{}
	for _, id := range ids {
		for _, u := range a[id] {
			if u == userID {
				out[id] = true
			}
		}
	}
	return out, nil
}

// tenantRoles answers for a single tenant; every other tenant reports non-membership.
type tenantRoles struct {
	tenantID uuid.UUID
	roles    map[uuid.UUID]models.TenantRole
}

func (r tenantRoles) Role(_ context.Context, tenantID, userID uuid.UUID) (models.TenantRole, error) {
	role, ok := r.roles[userID]
	if !ok || tenantID != r.tenantID {
		return "", models.ErrNotFound
	}
	return role, nil
}

type limiterFunc func() error

func (f limiterFunc) CheckEvents(context.Context, uuid.UUID, time.Time) error { return f() }

type recordingNotifier struct {
	jobs []queue.OwnerAssignedPayload
	err  error
}

func (n *recordingNotifier) EnqueueOwnerAssigned(_ context.Context, p queue.OwnerAssignedPayload) error {
	n.jobs = append(n.jobs, p)
	return n.err
}

type harness struct {
	router   *gin.Engine
	store    *memStore
	services serviceMap
	admins   adminMap
	notifier *recordingNotifier
	limitErr error
	caller   uuid.UUID
	tenantID uuid.UUID
	service  *models.Service
	role     uuid.UUID
}

func newHarness(callerRole models.TenantRole) *harness {
	h := &harness{
		store:    newMemStore(),
		services: serviceMap{},
		admins:   adminMap{},
		notifier: &recordingNotifier{},
		caller:   uuid.New(),
		tenantID: uuid.New(),
		role:     uuid.New(),
	}
	h.service = &models.Service{ID: uuid.New(), TenantID: h.tenantID, Name: "Sunday"}
	h.services[h.service.ID] = h.service
	h.store.roles[h.role] = h.service.ID
	h.store.members[h.caller] = true

	roles := tenantRoles{tenantID: h.tenantID, roles: map[uuid.UUID]models.TenantRole{h.caller: callerRole}}
	handler := NewHandler(Deps{
		Store:    h.store,
		Services: h.services,
		Roles:    roles,
		Perms:    permissions.NewChecker(h.admins),
		Limiter:  limiterFunc(func() error { return h.limitErr }),
		Notifier: h.notifier,
	})
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, h.caller)
		c.Next()
	})
	handler.RegisterRoutes(api, api.Group("/tenants/:tenantId", middleware.RequireTenantMember(roles)))
	h.router = r
	return h
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *harness) eventsPath() string {
	return "/tenants/" + h.tenantID.String() + "/events"
}

func (h *harness) seedEvent(date string, owners ...models.OwnerAssignment) *models.ServiceEvent {
	e := &models.ServiceEvent{ID: uuid.New(), ServiceID: h.service.ID, TenantID: h.tenantID, Date: date, StartTime: "09:00", EndTime: "10:30"}
	h.store.events[e.ID] = e
	h.store.owners[e.ID] = owners
	return e
}

func decodeRow(t *testing.T, w *httptest.ResponseRecorder) models.ServiceEventRow {
	t.Helper()
	var body struct {
		Data models.ServiceEventRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func TestCreate_DedupesOwnersAndNotifies(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	o := models.OwnerAssignment{UserID: h.caller, RoleID: h.role}
	w := h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID,
		"date":       "2026-11-01",
		"start_time": "09:00",
		"end_time":   "10:30",
		"subtitle":   "  Communion  ",
		"owners":     []models.OwnerAssignment{o, o},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	row := decodeRow(t, w)
	require.Equal(t, "Communion", *row.Subtitle)
	require.True(t, row.CanManage)
	require.Len(t, row.Owners, 1)
	require.Equal(t, []models.OwnerAssignment{o}, h.store.owners[row.ID])
	require.Len(t, h.notifier.jobs, 1)
	require.Equal(t, row.ID, h.notifier.jobs[0].EventID)
}

func TestCreate_ValidatesFieldsAndOwners(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	w := h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "11/01/2026", "start_time": "9am", "end_time": "",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, validation.MsgInvalidDate, body.Fields["date"])
	require.Equal(t, validation.MsgInvalidTime, body.Fields["start_time"])
	require.Equal(t, validation.MsgRequired, body.Fields["end_time"])

	w = h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "2026-11-01", "start_time": "09:00", "end_time": "10:00",
		"owners": []models.OwnerAssignment{{UserID: uuid.New(), RoleID: uuid.New()}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = response.Body{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, validation.MsgInvalid, body.Fields["owners.role_id"])
	require.Equal(t, validation.MsgInvalid, body.Fields["owners.user_id"])
	require.Empty(t, h.store.events)
}

func TestCreate_MemberWithoutAdminRightsIsForbidden(t *testing.T) {
	h := newHarness(models.TenantRoleMember)
	req := map[string]any{"service_id": h.service.ID, "date": "2026-11-01", "start_time": "09:00", "end_time": "10:00"}
	w := h.do(http.MethodPost, h.eventsPath(), req)
	require.Equal(t, http.StatusForbidden, w.Code)

	h.admins[h.service.ID] = []uuid.UUID{h.caller}
	w = h.do(http.MethodPost, h.eventsPath(), req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreate_LimitReached(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	h.limitErr = &pricing.LimitError{Tier: pricing.TierFree, Resource: pricing.ResourceEvents, Limit: 20}
	w := h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "2026-11-01", "start_time": "09:00", "end_time": "10:00",
	})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, h.store.events)
}

func TestCreate_CopyRecordsSource(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	src := h.seedEvent("2026-11-01")
	w := h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "2026-11-08", "start_time": "09:00", "end_time": "10:30",
		"mode": "copy", "source_event_id": src.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	row := decodeRow(t, w)
	require.NotNil(t, row.CopiedFromEventID)
	require.Equal(t, src.ID, *row.CopiedFromEventID)

	w = h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "2026-11-08", "start_time": "09:00", "end_time": "10:30", "mode": "copy",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_NotifierFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	h.notifier.err = errors.New("redis down")
	w := h.do(http.MethodPost, h.eventsPath(), map[string]any{
		"service_id": h.service.ID, "date": "2026-11-01", "start_time": "09:00", "end_time": "10:00",
		"owners": []models.OwnerAssignment{{UserID: h.caller, RoleID: h.role}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestUpdate_ReconcilesOwnersAndKeepsService(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	other := uuid.New()
	h.store.members[other] = true
	keep := models.OwnerAssignment{UserID: h.caller, RoleID: h.role}
	add := models.OwnerAssignment{UserID: other, RoleID: h.role}
	e := h.seedEvent("2026-11-01", keep)

	w := h.do(http.MethodPatch, "/events/"+e.ID.String(), map[string]any{
		"date": "2026-11-02", "start_time": "10:00", "end_time": "11:00",
		"owners": []models.OwnerAssignment{keep, add},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "2026-11-02", h.store.events[e.ID].Date)
	require.Equal(t, []models.OwnerAssignment{keep, add}, h.store.owners[e.ID])
	require.Len(t, h.notifier.jobs, 1)
	require.Equal(t, other, h.notifier.jobs[0].UserID)

	w = h.do(http.MethodPatch, "/events/"+e.ID.String(), map[string]any{
		"service_id": uuid.New(), "date": "2026-11-02", "start_time": "10:00", "end_time": "11:00",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdate_MovingIntoFullMonthHitsLimit(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	e := h.seedEvent("2026-11-01")
	h.limitErr = &pricing.LimitError{Tier: pricing.TierFree, Resource: pricing.ResourceEvents, Limit: 20}

	w := h.do(http.MethodPatch, "/events/"+e.ID.String(), map[string]any{
		"date": "2026-12-05", "start_time": "09:00", "end_time": "10:30",
	})
	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	require.Equal(t, "2026-11-01", h.store.events[e.ID].Date)

	// Same month: the event is already counted there.
	w = h.do(http.MethodPatch, "/events/"+e.ID.String(), map[string]any{
		"date": "2026-11-20", "start_time": "09:00", "end_time": "10:30",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "2026-11-20", h.store.events[e.ID].Date)
}

func TestSameMonth(t *testing.T) {
	require.True(t, sameMonth("2026-11-01", "2026-11-30"))
	require.False(t, sameMonth("2026-11-30", "2026-12-01"))
	require.False(t, sameMonth("2025-11-01", "2026-11-01"))
	require.False(t, sameMonth("", "2026-11-01"))
}

func TestList_FiltersAndEmbedsOwnersInOneQuery(t *testing.T) {
	h := newHarness(models.TenantRoleMember)
	o := models.OwnerAssignment{UserID: h.caller, RoleID: h.role}
	h.seedEvent("2026-10-01", o)
	h.seedEvent("2026-11-01")
	h.seedEvent("2026-12-01", o)

	w := h.do(http.MethodGet, h.eventsPath()+"?from=2026-10-15&to=2026-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data []models.ServiceEventRow `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.Equal(t, 1, h.store.ownerHits)
	for _, row := range body.Data {
		require.False(t, row.CanManage)
		require.NotNil(t, row.Owners)
	}

	w = h.do(http.MethodGet, h.eventsPath()+"?from=tomorrow", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchOwners_OmitsForeignTenants(t *testing.T) {
	h := newHarness(models.TenantRoleMember)
	o := models.OwnerAssignment{UserID: h.caller, RoleID: h.role}
	mine := h.seedEvent("2026-11-01", o)
	foreign := &models.ServiceEvent{ID: uuid.New(), TenantID: uuid.New(), ServiceID: uuid.New(), Date: "2026-11-01"}
	h.store.events[foreign.ID] = foreign
	h.store.owners[foreign.ID] = []models.OwnerAssignment{o}

	w := h.do(http.MethodPost, "/events/owners/batch", map[string]any{"event_ids": []uuid.UUID{mine.ID, foreign.ID, uuid.New()}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data map[uuid.UUID][]models.ServiceEventOwner `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	require.Len(t, body.Data[mine.ID], 1)
}

func TestDelete_RequiresManageRights(t *testing.T) {
	h := newHarness(models.TenantRoleMember)
	e := h.seedEvent("2026-11-01")
	w := h.do(http.MethodDelete, "/events/"+e.ID.String(), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/events/"+e.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	h.admins[h.service.ID] = []uuid.UUID{h.caller}
	w = h.do(http.MethodDelete, "/events/"+e.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, h.store.events)
}

func TestDiffOwners(t *testing.T) {
	a := models.OwnerAssignment{UserID: uuid.New(), RoleID: uuid.New()}
	b := models.OwnerAssignment{UserID: uuid.New(), RoleID: uuid.New()}
	c := models.OwnerAssignment{UserID: a.UserID, RoleID: b.RoleID}

	added, removed := DiffOwners([]models.OwnerAssignment{a, b}, []models.OwnerAssignment{b, c})
	require.Equal(t, []models.OwnerAssignment{c}, added)
	require.Equal(t, []models.OwnerAssignment{a}, removed)

	added, removed = DiffOwners(nil, nil)
	require.Empty(t, added)
	require.Empty(t, removed)
}
