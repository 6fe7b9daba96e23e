package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/congregate/backend/internal/auth"
	"github.com/congregate/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRoles map[uuid.UUID]models.TenantRole

func (f fakeRoles) Role(_ context.Context, _ uuid.UUID, userID uuid.UUID) (models.TenantRole, error) {
	if f == nil {
		return "", errors.New("boom")
	}
	r, ok := f[userID]
	if !ok {
		return "", models.ErrNotFound
	}
	return r, nil
}

func TestJWT_SetsUserID(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	uid := uuid.New()
	token, err := svc.Generate(uid, "a@example.com")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", JWT(svc), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c).String())
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uid.String(), w.Body.String())
}

func TestJWT_RejectsMissingAndMalformed(t *testing.T) {
	svc := auth.NewJWTService("secret", 1)
	r := gin.New()
	r.GET("/me", JWT(svc), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, h := range []string{"", "Token abc", "Bearer not-a-jwt"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code, h)
	}
}

func tenantRouter(roles fakeRoles, allowed ...models.TenantRole) (*gin.Engine, uuid.UUID) {
	uid := uuid.New()
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(ContextUserID, uid); c.Next() })
	chain := []gin.HandlerFunc{RequireTenantMember(roles)}
	if len(allowed) > 0 {
		chain = append(chain, RequireRole(allowed...))
	}
	chain = append(chain, func(c *gin.Context) { c.String(http.StatusOK, string(TenantRole(c))) })
	r.GET("/tenants/:tenantId/x", chain...)
	return r, uid
}

func TestRequireTenantMember(t *testing.T) {
	roles := fakeRoles{}
	r, uid := tenantRouter(roles)
	path := "/tenants/" + uuid.NewString() + "/x"

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	roles[uid] = models.TenantRoleMember
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "member", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/nope/x", nil))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequireTenantMember_LookupFailure(t *testing.T) {
	r, _ := tenantRouter(nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/"+uuid.NewString()+"/x", nil))
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireRole(t *testing.T) {
	roles := fakeRoles{}
	r, uid := tenantRouter(roles, models.TenantRoleOwner, models.TenantRoleAdmin)
	path := "/tenants/" + uuid.NewString() + "/x"

	roles[uid] = models.TenantRoleMember
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	roles[uid] = models.TenantRoleAdmin
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_BlocksAfterBurst(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", RateLimit(1, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimit_DisabledWhenZero(t *testing.T) {
	r := gin.New()
	r.GET("/", RateLimit(0, 0), func(c *gin.Context) { c.Status(http.StatusOK) })
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMetrics_CountsByRoute(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/services/:serviceId", func(c *gin.Context) {
		m.Mutation("service", "read")
		c.Status(http.StatusOK)
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/services/abc", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	require.True(t, strings.Contains(body, `congregate_http_requests_total{method="GET",route="/services/:serviceId",status="200"} 1`), body)
	require.True(t, strings.Contains(body, `congregate_mutations_total{action="read",entity="service"} 1`), body)
}

func TestMetrics_NilMutationIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() { m.Mutation("x", "y") })
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000/, https://app.example.org"))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)
	require.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyListAllowsAll(t *testing.T) {
	require.Equal(t, "*", newCORSPolicy(" , ").allow("https://anything.example"))
	require.Equal(t, "*", newCORSPolicy("*,https://a.example").allow("https://b.example"))
}

func TestLogger_DoesNotInterfere(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusTeapot) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusTeapot, w.Code)
	require.NotEmpty(t, w.Header().Get(HeaderRequestID))
}

func TestLogger_EchoesRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Logger(zap.New(core)))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	r.ServeHTTP(w, req)

	require.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	require.Equal(t, zap.ErrorLevel, entries[0].Level)
	require.Equal(t, "abc-123", entries[0].ContextMap()["request_id"])
}
