package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/store/storetest"
)

func newAuthFixture(t *testing.T) (*biz.Services, *biz.AuthService, context.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := storetest.NewClient(t)
	services := biz.NewServicesForTest(client)

	hash, err := biz.HashPassword("admin-pw")
	require.NoError(t, err)

	auth := biz.NewAuthService(biz.AuthServiceParams{
		Config: biz.AuthConfig{
			SecretKey:         "test-secret",
			AdminPasswordHash: hash,
		},
		TenantService: services.Tenant,
	})

	return services, auth, store.NewContext(context.Background(), client)
}

func TestAdminAuth(t *testing.T) {
	_, auth, ctx := newAuthFixture(t)

	router := gin.New()
	router.Use(WithAdminAuth(auth))
	router.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("non-bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Basic abc")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid admin token", func(t *testing.T) {
		token, err := auth.AuthenticateAdmin(ctx, "admin-pw")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAgentAuth(t *testing.T) {
	services, auth, ctx := newAuthFixture(t)

	tenant, err := services.Tenant.Provision(ctx, "agent-tenant")
	require.NoError(t, err)

	var (
		gotTenant int
		gotUser   string
	)

	router := gin.New()
	router.Use(WithStoreClient(store.FromContext(ctx)))
	router.Use(WithAgentAuth(auth, services.Tenant))
	router.GET("/v1/probe", func(c *gin.Context) {
		gotTenant, _ = contexts.GetTenantID(c.Request.Context())
		gotUser, _ = contexts.GetUserID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	token, err := auth.MintAgentToken(ctx, tenant.ID, "user-7")
	require.NoError(t, err)

	t.Run("binds tenant and user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, tenant.ID, gotTenant)
		require.Equal(t, "user-7", gotUser)
	})

	t.Run("admin token rejected", func(t *testing.T) {
		adminToken, err := auth.AuthenticateAdmin(ctx, "admin-pw")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("suspended tenant", func(t *testing.T) {
		require.NoError(t, services.Tenant.Suspend(ctx, tenant.ID))

		t.Cleanup(func() {
			require.NoError(t, services.Tenant.Activate(ctx, tenant.ID))
		})

		req := httptest.NewRequest(http.MethodGet, "/v1/probe", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
