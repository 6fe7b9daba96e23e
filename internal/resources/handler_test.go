package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/congregate/backend/internal/middleware"
	"github.com/congregate/backend/internal/models"
	"github.com/congregate/backend/pkg/response"
	"github.com/congregate/backend/pkg/storage"
	"github.com/congregate/backend/pkg/validation"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := validation.RegisterGin(); err != nil {
		panic(err)
	}
}

type memStore struct {
	items map[uuid.UUID]*models.Resource
}

func (m *memStore) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]models.Resource, error) {
	out := []models.Resource{}
	for _, r := range m.items {
		if r.TenantID == tenantID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, r *models.Resource) error {
	r.ID = uuid.New()
	cp := *r
	m.items[r.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.Resource, error) {
	r, ok := m.items[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

type fakeObjects struct {
	objects map[string][]byte
	deleted []string
}

func (f *fakeObjects) PresignUpload(_ context.Context, key, _ string) (string, error) {
	return "https://s3.test/put/" + key, nil
}

func (f *fakeObjects) PresignDownload(_ context.Context, key string) (string, error) {
	return "https://s3.test/get/" + key, nil
}

func (f *fakeObjects) PresignExpire() time.Duration { return 15 * time.Minute }

func (f *fakeObjects) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = b
	return nil
}

func (f *fakeObjects) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.objects, key)
	return nil
}

type roleMap map[uuid.UUID]models.TenantRole

func (r roleMap) Role(_ context.Context, _ uuid.UUID, userID uuid.UUID) (models.TenantRole, error) {
	role, ok := r[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return role, nil
}

type harness struct {
	router   *gin.Engine
	store    *memStore
	objects  *fakeObjects
	tenantID uuid.UUID
}

func newHarness(role models.TenantRole) *harness {
	caller := uuid.New()
	h := &harness{
		store:    &memStore{items: map[uuid.UUID]*models.Resource{}},
		objects:  &fakeObjects{objects: map[string][]byte{}},
		tenantID: uuid.New(),
	}
	roles := roleMap{caller: role}
	handler := NewHandler(h.store, h.objects, roles, nil, zap.NewNop())
	r := gin.New()
	api := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, caller)
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

func (h *harness) base() string { return "/tenants/" + h.tenantID.String() + "/resources" }

func fields(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Fields
}

func TestCreate_LinkResource(t *testing.T) {
	h := newHarness(models.TenantRoleAdmin)
	w := h.do(http.MethodPost, h.base(), map[string]any{"title": "  Songbook ", "url": "example.com/songs"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, h.store.items, 1)
	for _, r := range h.store.items {
		require.Equal(t, "Songbook", r.Title)
		require.Equal(t, "example.com/songs", *r.URL)
		require.Nil(t, r.ObjectKey)
	}

	w = h.do(http.MethodPost, h.base(), map[string]any{"title": "Bad", "url": "not a link"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, validation.MsgInvalidURL, fields(t, w)["url"])

	w = h.do(http.MethodPost, h.base(), map[string]any{"title": " "})
	require.Equal(t, http.StatusBadRequest, w.Code)
	f := fields(t, w)
	require.Equal(t, validation.MsgRequired, f["title"])
	require.Equal(t, validation.MsgRequired, f["url"])
}

func TestCreate_ObjectResourceMustBeUploadedUnderTenant(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	w := h.do(http.MethodPost, h.base()+"/upload-url", map[string]any{"filename": "setlist.pdf"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data struct {
			Key         string `json:"key"`
			ContentType string `json:"content_type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, storage.KeyBelongsToTenant(body.Data.Key, h.tenantID.String()))
	require.Equal(t, "application/pdf", body.Data.ContentType)

	w = h.do(http.MethodPost, h.base(), map[string]any{"title": "Setlist", "key": body.Data.Key})
	require.Equal(t, http.StatusBadRequest, w.Code)

	h.objects.objects[body.Data.Key] = []byte("%PDF")
	w = h.do(http.MethodPost, h.base(), map[string]any{"title": "Setlist", "key": body.Data.Key})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	foreign := storage.ResourceKey(uuid.NewString(), "x.pdf")
	w = h.do(http.MethodPost, h.base(), map[string]any{"title": "Theirs", "key": foreign})
	require.Equal(t, validation.MsgInvalid, fields(t, w)["key"])

	w = h.do(http.MethodPost, h.base()+"/upload-url", map[string]any{"filename": "run.exe"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpload_Multipart(t *testing.T) {
	h := newHarness(models.TenantRoleAdmin)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Sermon notes"))
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("grace"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, h.base()+"/file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, h.objects.objects, 1)
	for key, b := range h.objects.objects {
		require.True(t, storage.KeyBelongsToTenant(key, h.tenantID.String()))
		require.Equal(t, "grace", string(b))
	}
}

func TestMembersReadOnly(t *testing.T) {
	h := newHarness(models.TenantRoleMember)
	key := storage.ResourceKey(h.tenantID.String(), "a.png")
	res := &models.Resource{ID: uuid.New(), TenantID: h.tenantID, Title: "A", ObjectKey: &key, ContentType: "image/png"}
	h.store.items[res.ID] = res

	w := h.do(http.MethodGet, h.base(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodPost, h.base(), map[string]any{"title": "x", "url": "example.com"})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/resources/"+res.ID.String()+"/download-url", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "https://s3.test/get/"+key)

	w = h.do(http.MethodDelete, "/resources/"+res.ID.String(), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDelete_RemovesObject(t *testing.T) {
	h := newHarness(models.TenantRoleOwner)
	key := storage.ResourceKey(h.tenantID.String(), "a.png")
	h.objects.objects[key] = []byte("png")
	res := &models.Resource{ID: uuid.New(), TenantID: h.tenantID, Title: "A", ObjectKey: &key}
	h.store.items[res.ID] = res

	w := h.do(http.MethodDelete, "/resources/"+res.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, h.store.items)
	require.Equal(t, []string{key}, h.objects.deleted)
}
