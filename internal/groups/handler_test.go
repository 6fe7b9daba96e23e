package groups

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGin(); err != nil {
		panic(err)
	}
}

type fakeStore struct {
	groups  map[uuid.UUID]*models.Group
	members map[uuid.UUID]map[uuid.UUID]bool
}

func (f *fakeStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.Group, error) {
	out := []models.Group{}
	for _, g := range f.groups {
		if g.TenantID == tenantID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, g *models.Group) error {
	g.ID = uuid.New()
	f.groups[g.ID] = g
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (f *fakeStore) Update(_ context.Context, g *models.Group) error {
	f.groups[g.ID] = g
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(f.groups, id)
	return nil
}

func (f *fakeStore) ListMembers(context.Context, uuid.UUID) ([]models.GroupMember, error) {
	return []models.GroupMember{}, nil
}

func (f *fakeStore) AddMember(_ context.Context, groupID, userID uuid.UUID) error {
	if f.members[groupID] == nil {
		f.members[groupID] = map[uuid.UUID]bool{}
	}
	f.members[groupID][userID] = true
	return nil
}

func (f *fakeStore) RemoveMember(_ context.Context, groupID, userID uuid.UUID) error {
	delete(f.members[groupID], userID)
	return nil
}

type fixedRole models.TenantRole

func (r fixedRole) Role(context.Context, uuid.UUID, uuid.UUID) (models.TenantRole, error) {
	if r == "" {
		return "", models.ErrNotFound
	}
	return models.TenantRole(r), nil
}

type fakeLimiter struct{ err error }

func (f fakeLimiter) CheckGroups(context.Context, uuid.UUID) error { return f.err }

func newRouter(store *fakeStore, role fixedRole, limitErr error) *gin.Engine {
	h := NewHandler(store, role, fakeLimiter{err: limitErr}, nil, zap.NewNop())
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uuid.New())
		c.Next()
	})
	h.RegisterRoutes(api, api.Group("/tenants/:tenantId", middleware.RequireTenantMember(role)))
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreate_TrimsAndChecksLimit(t *testing.T) {
	store := &fakeStore{groups: map[uuid.UUID]*models.Group{}, members: map[uuid.UUID]map[uuid.UUID]bool{}}
	tenantID := uuid.New()

	r := newRouter(store, fixedRole(models.TenantRoleAdmin), nil)
	w := do(r, http.MethodPost, "/tenants/"+tenantID.String()+"/groups", map[string]string{"name": "  Choir "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, store.groups, 1)
	for _, g := range store.groups {
		require.Equal(t, "Choir", g.Name)
		require.Equal(t, tenantID, g.TenantID)
	}

	r = newRouter(store, fixedRole(models.TenantRoleAdmin), models.ErrLimitReached)
	w = do(r, http.MethodPost, "/tenants/"+tenantID.String()+"/groups", map[string]string{"name": "Ushers"})
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Len(t, store.groups, 1)
}

func TestMemberRoleCannotManageGroups(t *testing.T) {
	tenantID := uuid.New()
	g := &models.Group{ID: uuid.New(), TenantID: tenantID, Name: "Choir"}
	store := &fakeStore{groups: map[uuid.UUID]*models.Group{g.ID: g}, members: map[uuid.UUID]map[uuid.UUID]bool{}}
	r := newRouter(store, fixedRole(models.TenantRoleMember), nil)

	w := do(r, http.MethodGet, "/groups/"+g.ID.String()+"/members", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/groups/"+g.ID.String()+"/members/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = do(r, http.MethodDelete, "/groups/"+g.ID.String(), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Len(t, store.groups, 1)
}

func TestOutsiderIsForbidden(t *testing.T) {
	g := &models.Group{ID: uuid.New(), TenantID: uuid.New(), Name: "Choir"}
	store := &fakeStore{groups: map[uuid.UUID]*models.Group{g.ID: g}, members: map[uuid.UUID]map[uuid.UUID]bool{}}
	r := newRouter(store, fixedRole(""), nil)

	w := do(r, http.MethodGet, "/groups/"+g.ID.String()+"/members", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	w = do(r, http.MethodPatch, "/groups/"+uuid.NewString(), map[string]string{"name": "x"})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddAndRemoveMember(t *testing.T) {
	g := &models.Group{ID: uuid.New(), TenantID: uuid.New(), Name: "Choir"}
	store := &fakeStore{groups: map[uuid.UUID]*models.Group{g.ID: g}, members: map[uuid.UUID]map[uuid.UUID]bool{}}
	r := newRouter(store, fixedRole(models.TenantRoleOwner), nil)
	uid := uuid.New()

	w := do(r, http.MethodPut, "/groups/"+g.ID.String()+"/members/"+uid.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.True(t, store.members[g.ID][uid])

	w = do(r, http.MethodDelete, "/groups/"+g.ID.String()+"/members/"+uid.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.False(t, store.members[g.ID][uid])
}
