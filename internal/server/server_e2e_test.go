package server

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/looplj/memvault/internal/crypto"
	"github.com/looplj/memvault/internal/log"
	"github.com/looplj/memvault/internal/objects"
	"github.com/looplj/memvault/internal/server/api"
	"github.com/looplj/memvault/internal/server/biz"
	"github.com/looplj/memvault/internal/store"
	"github.com/looplj/memvault/internal/store/storetest"
)

type e2eEnv struct {
	server   *Server
	client   *store.Client
	services *biz.Services
	logs     *observer.ObservedLogs
}

func newE2EEnv(t *testing.T) *e2eEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	prev := log.GetGlobalLogger()
	log.SetGlobalLogger(log.NewWithCore(core))

	t.Cleanup(func() { log.SetGlobalLogger(prev) })

	client := storetest.NewClient(t)
	services := biz.NewServicesForTest(client)

	hash, err := biz.HashPassword("admin-pw")
	require.NoError(t, err)

	auth := biz.NewAuthService(biz.AuthServiceParams{
		Config: biz.AuthConfig{
			SecretKey:         "e2e-secret",
			AdminPasswordHash: hash,
		},
		TenantService: services.Tenant,
	})
	services.Auth = auth

	srv := New(Config{Name: "memvault-test", Debug: true, RequestTimeout: 10 * time.Second})

	SetupRoutes(srv, Handlers{
		System:   api.NewSystemHandlers(api.SystemHandlersParams{Store: client}),
		Auth:     api.NewAuthHandlers(api.AuthHandlersParams{AuthService: auth}),
		Tenant:   api.NewTenantHandlers(api.TenantHandlersParams{TenantService: services.Tenant}),
		Topic:    api.NewTopicHandlers(api.TopicHandlersParams{TopicService: services.Topic}),
		Anchor:   api.NewAnchorHandlers(api.AnchorHandlersParams{AnchorService: services.Anchor}),
		Action:   api.NewActionHandlers(api.ActionHandlersParams{QueueService: services.Queue}),
		Archive:  api.NewArchiveHandlers(api.ArchiveHandlersParams{ArchiveService: newMemArchive(t, client)}),
		Rotation: api.NewRotationHandlers(api.RotationHandlersParams{RotationService: services.Rotation}),
	}, client, Services{
		AuthService:   auth,
		TenantService: services.Tenant,
		DrainService:  services.Drain,
	})

	return &e2eEnv{server: srv, client: client, services: services, logs: logs}
}

func newMemArchive(t *testing.T, client *store.Client) *biz.ArchiveService {
	t.Helper()

	svc, err := biz.NewArchiveService(biz.ArchiveServiceParams{
		Store:  client,
		Config: biz.ArchiveConfig{Type: "fs", Directory: t.TempDir()},
	})
	require.NoError(t, err)

	return svc
}

func (e *e2eEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.server.Engine.ServeHTTP(w, req)

	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var out T

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))

	return out
}

func TestServerEndToEnd(t *testing.T) {
	env := newE2EEnv(t)

	// Admin bootstrap: signin, provision a tenant, mint an agent token.
	w := env.do(t, http.MethodPost, "/admin/v1/auth/signin", map[string]string{"password": "admin-pw"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	adminToken := decodeJSON[api.SignInResponse](t, w).Token

	adminHeaders := map[string]string{"Authorization": "Bearer " + adminToken}

	w = env.do(t, http.MethodPost, "/admin/v1/tenants", map[string]string{"name": "travel-agent"}, adminHeaders)
	require.Equal(t, http.StatusCreated, w.Code)
	tenant := decodeJSON[objects.Tenant](t, w)
	require.NotEmpty(t, tenant.Salt)
	require.Equal(t, crypto.DefaultKDFIterations, tenant.KDFIterations)

	w = env.do(t, http.MethodPost, "/admin/v1/auth/token", map[string]any{"tenant_id": tenant.ID, "user_id": "traveler"}, adminHeaders)
	require.Equal(t, http.StatusOK, w.Code)
	agentToken := decodeJSON[api.MintTokenResponse](t, w).Token

	// The edge derives the content key from the tenant's published
	// contract; the server only ever sees it inside request headers.
	salt, err := hex.DecodeString(tenant.Salt)
	require.NoError(t, err)

	key := crypto.DeriveKey([]byte("travel-passphrase"), salt, tenant.KDFIterations)
	keyHeader := base64.StdEncoding.EncodeToString(key)

	agentHeaders := func(withKey bool) map[string]string {
		h := map[string]string{"Authorization": "Bearer " + agentToken}
		if withKey {
			h["X-Memvault-Content-Key"] = keyHeader
		}

		return h
	}

	// Create two topics about the trip.
	w = env.do(t, http.MethodPost, "/v1/topics", api.CreateTopicRequest{
		Content: objects.TopicContent{
			Title:   "Paris trip",
			Summary: "Flights booked for May. Hotel near the Louvre.",
			Source:  "User is planning a trip to Paris in May.",
		},
		Embedding:     []float32{1, 0, 0},
		RawExtraction: `{"entities": ["Paris", "Louvre",]}`,
	}, agentHeaders(true))
	require.Equal(t, http.StatusCreated, w.Code)
	paris := decodeJSON[objects.Topic](t, w)
	require.Contains(t, paris.Content.Entities, "Paris")
	require.Contains(t, paris.Content.Entities, "Louvre")

	w = env.do(t, http.MethodPost, "/v1/topics", api.CreateTopicRequest{
		Content:   objects.TopicContent{Title: "Budget", Summary: "Trip budget is 3000 EUR."},
		Embedding: []float32{0.9, 0.1, 0},
	}, agentHeaders(true))
	require.Equal(t, http.StatusCreated, w.Code)
	budget := decodeJSON[objects.Topic](t, w)

	// Reads require the key window.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", paris.ID), nil, agentHeaders(true))
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeJSON[objects.Topic](t, w)
	require.Equal(t, "Paris trip", got.Content.Title)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", paris.ID), nil, agentHeaders(false))
	require.Equal(t, http.StatusPreconditionRequired, w.Code)

	// A wrong key is indistinguishable from no access.
	wrongKey := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0x7f}, crypto.KeySize))
	headers := agentHeaders(false)
	headers["X-Memvault-Content-Key"] = wrongKey
	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", paris.ID), nil, headers)
	require.Equal(t, http.StatusForbidden, w.Code)

	// Structural listing works keyless, but carries no titles.
	w = env.do(t, http.MethodGet, "/v1/topics", nil, agentHeaders(false))
	require.Equal(t, http.StatusOK, w.Code)

	keyless := decodeJSON[map[string][]objects.TopicSummary](t, w)["topics"]
	require.Len(t, keyless, 2)

	for _, summary := range keyless {
		require.Empty(t, summary.Title)
	}

	// With the key the same listing decrypts titles.
	w = env.do(t, http.MethodGet, "/v1/topics", nil, agentHeaders(true))
	require.Equal(t, http.StatusOK, w.Code)

	titled := decodeJSON[map[string][]objects.TopicSummary](t, w)["topics"]
	titles := make([]string, 0, len(titled))

	for _, summary := range titled {
		titles = append(titles, summary.Title)
	}

	require.ElementsMatch(t, []string{"Paris trip", "Budget"}, titles)

	// Vector search ranks the Paris topic first for a Paris-like query.
	w = env.do(t, http.MethodPost, "/v1/topics/search", api.SearchTopicsRequest{
		Embedding: []float32{1, 0, 0},
		Limit:     2,
	}, agentHeaders(true))
	require.Equal(t, http.StatusOK, w.Code)

	hits := decodeJSON[map[string][]objects.SearchHit](t, w)["hits"]
	require.NotEmpty(t, hits)
	require.Equal(t, paris.ID, hits[0].ID)

	// Graph edges are structural.
	w = env.do(t, http.MethodPost, fmt.Sprintf("/v1/topics/%d/edges", paris.ID), api.AddEdgeRequest{
		DstID:  budget.ID,
		Kind:   objects.EdgeKindRelated,
		Weight: 0.9,
	}, agentHeaders(false))
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d/neighbors", paris.ID), nil, agentHeaders(false))
	require.Equal(t, http.StatusOK, w.Code)
	edges := decodeJSON[map[string][]objects.Edge](t, w)["edges"]
	require.Len(t, edges, 1)
	require.Equal(t, budget.ID, edges[0].DstID)

	// The raw key never reaches a log sink.
	for _, entry := range env.logs.All() {
		require.NotContains(t, entry.Message, keyHeader)

		for _, field := range entry.Context {
			require.NotContains(t, field.String, keyHeader)

			if field.Interface != nil {
				require.NotContains(t, fmt.Sprintf("%v", field.Interface), keyHeader)
			}
		}
	}
}

func TestServerDrainsQueuedMergeOnNextRequest(t *testing.T) {
	env := newE2EEnv(t)
	ctx := store.NewContext(t.Context(), env.client)

	tenant, err := env.services.Tenant.Provision(ctx, "merging-tenant")
	require.NoError(t, err)

	agentToken, err := env.services.Auth.MintAgentToken(ctx, tenant.ID, "u")
	require.NoError(t, err)

	key := bytes.Repeat([]byte{0x5a}, crypto.KeySize)
	headers := map[string]string{
		"Authorization":          "Bearer " + agentToken,
		"X-Memvault-Content-Key": base64.StdEncoding.EncodeToString(key),
	}

	w := env.do(t, http.MethodPost, "/v1/topics", api.CreateTopicRequest{
		Content:    objects.TopicContent{Title: "Paris trip", Summary: "Spring trip planning."},
		Importance: 0.5,
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	survivor := decodeJSON[objects.Topic](t, w)

	w = env.do(t, http.MethodPost, "/v1/topics", api.CreateTopicRequest{
		Content:    objects.TopicContent{Title: "Paris vacation", Summary: "Museum bookings confirmed."},
		Importance: 0.9,
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	merged := decodeJSON[objects.Topic](t, w)

	_, created, err := env.services.Queue.Enqueue(ctx, tenant.ID, objects.ActionMergeExecution, []int{survivor.ID, merged.ID})
	require.NoError(t, err)
	require.True(t, created)

	// Any keyed request opens a drain window; the merge rides along
	// without affecting this response.
	w = env.do(t, http.MethodGet, "/v1/topics", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)

	pending, err := env.services.Queue.CountPending(ctx, tenant.ID)
	require.NoError(t, err)
	require.Zero(t, pending)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", survivor.ID), nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeJSON[objects.Topic](t, w)
	require.Equal(t, "Paris trip", got.Content.Title)
	require.Contains(t, got.Content.Summary, "Museum bookings confirmed.")

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", merged.ID), nil, headers)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestServerRotation(t *testing.T) {
	env := newE2EEnv(t)

	tenant, err := env.services.Tenant.Provision(
		store.NewContext(t.Context(), env.client), "rotating-tenant",
	)
	require.NoError(t, err)

	agentToken, err := env.services.Auth.MintAgentToken(
		store.NewContext(t.Context(), env.client), tenant.ID, "u",
	)
	require.NoError(t, err)

	oldKey := bytes.Repeat([]byte{0x42}, crypto.KeySize)
	newKey := bytes.Repeat([]byte{0x43}, crypto.KeySize)
	oldHeader := base64.StdEncoding.EncodeToString(oldKey)
	newHeader := base64.StdEncoding.EncodeToString(newKey)

	w := env.do(t, http.MethodPost, "/v1/topics", api.CreateTopicRequest{
		Content: objects.TopicContent{Title: "Secret", Summary: "Sealed under the old key."},
	}, map[string]string{
		"Authorization":          "Bearer " + agentToken,
		"X-Memvault-Content-Key": oldHeader,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	topic := decodeJSON[objects.Topic](t, w)

	w = env.do(t, http.MethodPost, "/v1/tenants/rotate", nil, map[string]string{
		"Authorization":           "Bearer " + agentToken,
		"X-Memvault-Content-Key":  oldHeader,
		"X-Memvault-Rotation-Key": newHeader,
	})
	require.Equal(t, http.StatusOK, w.Code)

	result := decodeJSON[objects.RotationResult](t, w)
	require.Equal(t, 1, result.TopicsRotated)
	require.Zero(t, result.Failed)

	// The old key no longer opens the topic; the new one does.
	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", topic.ID), nil, map[string]string{
		"Authorization":          "Bearer " + agentToken,
		"X-Memvault-Content-Key": oldHeader,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/topics/%d", topic.ID), nil, map[string]string{
		"Authorization":          "Bearer " + agentToken,
		"X-Memvault-Content-Key": newHeader,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Secret", decodeJSON[objects.Topic](t, w).Content.Title)
}
