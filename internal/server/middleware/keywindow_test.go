package middleware

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/looplj/memvault/internal/contexts"
	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/keyring"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/store/storetest"
)

func testKeyHeader(seed byte) string {
	return base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{seed}, crypto.KeySize))
}

// bindTenant stands in for agent auth in tests.
func bindTenant(tenantID int, userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := contexts.WithTenantID(c.Request.Context(), tenantID)
		ctx = contexts.WithUserID(ctx, userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func newKeyWindowRouter(t *testing.T) (*gin.Engine, *biz.Services, *store.Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := storetest.NewClient(t)
	services := biz.NewServicesForTest(client)

	router := gin.New()
	router.Use(WithStoreClient(client))

	return router, services, client
}

func TestKeyWindowStripsHeaderBeforeHandler(t *testing.T) {
	router, services, _ := newKeyWindowRouter(t)

	var (
		seenHeader  string
		seenCarrier *keyring.Carrier
	)

	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		seenHeader = c.GetHeader("X-Memvault-Content-Key")
		seenCarrier, _ = contexts.GetKeyCarrier(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Memvault-Content-Key", testKeyHeader(0x11))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, seenHeader, "raw key must be stripped before handlers run")
	require.NotNil(t, seenCarrier)
	require.True(t, seenCarrier.Destroyed(), "carrier must be wiped once the window closes")
}

func TestKeyWindowMalformedKey(t *testing.T) {
	router, services, _ := newKeyWindowRouter(t)

	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		t.Fatal("handler must not run on malformed key")
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Memvault-Content-Key", "not-base64!!")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKeyWindowMissingKeyStillServes(t *testing.T) {
	router, services, _ := newKeyWindowRouter(t)

	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		_, ok := contexts.GetKeyCarrier(c.Request.Context())
		require.False(t, ok)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestKeyWindowDrainsOnSuccess(t *testing.T) {
	router, services, client := newKeyWindowRouter(t)

	ctx := store.NewContext(context.Background(), client)

	tenant, err := services.Tenant.Provision(ctx, "drain-tenant")
	require.NoError(t, err)

	key := bytes.Repeat([]byte{0x22}, crypto.KeySize)
	carrier, err := keyring.New(key)
	require.NoError(t, err)

	defer carrier.Destroy()

	topic, err := services.Topic.Create(ctx, carrier, tenant.ID, biz.CreateTopicInput{
		UserID: "user-1",
		Content: objects.TopicContent{
			Title:   "Budget review",
			Summary: "Q3 numbers look stable.",
		},
	})
	require.NoError(t, err)

	_, created, err := services.Queue.Enqueue(ctx, tenant.ID, objects.ActionAnchorRegeneration, []int{topic.ID})
	require.NoError(t, err)
	require.True(t, created)

	router.Use(bindTenant(tenant.ID, "user-1"))
	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Memvault-Content-Key", base64.StdEncoding.EncodeToString(key))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	pending, err := services.Queue.CountPending(ctx, tenant.ID)
	require.NoError(t, err)
	require.Zero(t, pending, "pending actions must be drained after a keyed success")

	anchors, err := services.Anchor.ListDecrypted(ctx, carrier, tenant.ID, "user-1")
	require.NoError(t, err)
	require.Len(t, anchors, 1)
}

func TestKeyWindowSkipsDrainOnFailure(t *testing.T) {
	router, services, client := newKeyWindowRouter(t)

	ctx := store.NewContext(context.Background(), client)

	tenant, err := services.Tenant.Provision(ctx, "no-drain-tenant")
	require.NoError(t, err)

	key := bytes.Repeat([]byte{0x33}, crypto.KeySize)
	carrier, err := keyring.New(key)
	require.NoError(t, err)

	defer carrier.Destroy()

	topic, err := services.Topic.Create(ctx, carrier, tenant.ID, biz.CreateTopicInput{
		UserID:  "user-1",
		Content: objects.TopicContent{Title: "t", Summary: "s"},
	})
	require.NoError(t, err)

	_, _, err = services.Queue.Enqueue(ctx, tenant.ID, objects.ActionAnchorRegeneration, []int{topic.ID})
	require.NoError(t, err)

	router.Use(bindTenant(tenant.ID, "user-1"))
	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Memvault-Content-Key", base64.StdEncoding.EncodeToString(key))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	pending, err := services.Queue.CountPending(ctx, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, 1, pending, "failed requests must not drain")
}

func TestKeyWindowKeyNeverLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.GetGlobalLogger()
	log.SetGlobalLogger(log.NewWithCore(core))

	t.Cleanup(func() { log.SetGlobalLogger(prev) })

	router, services, _ := newKeyWindowRouter(t)

	router.Use(AccessLog())
	router.Use(WithKeyWindow(KeyWindowConfig{}, services.Drain))
	router.GET("/probe", func(c *gin.Context) {
		log.Info(c.Request.Context(), "handling probe", log.Any("headers", c.Request.Header))
		c.Status(http.StatusTeapot)
	})

	sentinel := testKeyHeader(0x5a)
	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-Memvault-Content-Key", sentinel)
	req.Header.Set("X-Memvault-Rotation-Key", testKeyHeader(0x5b))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	for _, entry := range logs.All() {
		require.NotContains(t, entry.Message, sentinel)

		for _, field := range entry.Context {
			require.NotContains(t, field.String, sentinel)

			if field.Interface != nil {
				require.NotContains(t, fmt.Sprintf("%v", field.Interface), sentinel)
			}
		}
	}
}
