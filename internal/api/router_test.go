package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"gitbridge/internal/api"
	"gitbridge/internal/api/handler"
	mw "gitbridge/internal/api/middleware"
	"gitbridge/internal/store/mock"
	"gitbridge/internal/syncer"
	"gitbridge/pkg/models"
)

type stubCache struct{}

func (stubCache) Ping(context.Context) error { return nil }
func (stubCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}
func (stubCache) SetSyncStatus(context.Context, string, string, time.Duration) error { return nil }
func (stubCache) GetSyncStatus(context.Context, string) (string, bool, error) {
	return "", false, nil
}

type stubTrigger struct{}

func (stubTrigger) DispatchRefresh(context.Context, string) error { return nil }

func seedKey(t *testing.T, st *mock.MockStore, rawKey string, scopes ...string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "test " + rawKey[:8],
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    scopes,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, st.CreateAPIKey(context.Background(), key))
}

// Distinct prefixes so the lookup never crosses keys.
const (
	triggerKey = "gb_trigg0000000000000000000000000000000000000000000"
	ingestKey  = "gb_inges0000000000000000000000000000000000000000000"
	adminKey   = "gb_admin0000000000000000000000000000000000000000000"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	st := mock.NewMockStore()
	seedKey(t, st, triggerKey, models.ScopeSyncTrigger)
	seedKey(t, st, ingestKey, models.ScopeSyncIngest)
	seedKey(t, st, adminKey, models.ScopeAdmin)

	_, err := st.UpsertTenant(context.Background(), "g1", "Guild One")
	require.NoError(t, err)
	require.NoError(t, st.LinkTenantOrg(context.Background(), "g1", "acme"))

	dispatcher := syncer.NewDispatcher(st, stubTrigger{}, stubCache{}, 12*time.Hour)

	reached := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	return api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(st),
		RateLimit: mw.NewRateLimit(stubCache{}, 60),

		HealthHandler: reached,

		StartLinkHandler:    reached,
		LinkCallbackHandler: reached,
		GetUserLinkHandler:  reached,
		UnlinkHandler:       reached,

		SetupTenantHandler: reached,
		GetTenantHandler:   reached,
		RequestSyncHandler: handler.NewRequestSyncHandler(dispatcher),
		ReconcileHandler:   reached,
		IngestHandler:      reached,

		CreateKeyHandler: handler.NewCreateKeyHandler(st),
		ListKeysHandler:  reached,
		RevokeKeyHandler: reached,
	})
}

func do(router http.Handler, method, target, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(`{"name":"k","scopes":["admin"]}`))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t)

	assert.Equal(t, http.StatusOK, do(router, "GET", "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, do(router, "GET", "/metrics", "").Code)
	assert.Equal(t, http.StatusOK, do(router, "GET", "/auth/link/555", "").Code)
	assert.Equal(t, http.StatusOK, do(router, "GET", "/auth/callback", "").Code)
}

func TestRouter_ProtectedEndpointsRequireKey(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		target string
	}{
		{"GET", "/api/v1/users/555/link"},
		{"DELETE", "/api/v1/users/555/link"},
		{"GET", "/api/v1/tenants/g1"},
		{"POST", "/api/v1/tenants/g1/sync"},
		{"POST", "/api/v1/tenants/g1/reconcile"},
		{"POST", "/api/v1/orgs/acme/results"},
		{"PUT", "/api/v1/tenants/g1/org"},
		{"POST", "/api/v1/keys"},
		{"GET", "/api/v1/keys"},
		{"DELETE", "/api/v1/keys/" + uuid.NewString()},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.target, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, do(router, ep.method, ep.target, "").Code)
			assert.Equal(t, http.StatusUnauthorized,
				do(router, ep.method, ep.target, "gb_wrong0000000000000000000000000000000000000000000").Code)
		})
	}
}

func TestRouter_ScopeEnforcement(t *testing.T) {
	router := newTestRouter(t)

	// Trigger scope reaches the sync surface but not key management.
	assert.Equal(t, http.StatusOK, do(router, "GET", "/api/v1/tenants/g1", triggerKey).Code)
	assert.Equal(t, http.StatusAccepted, do(router, "POST", "/api/v1/tenants/g1/sync", triggerKey).Code)
	assert.Equal(t, http.StatusForbidden, do(router, "POST", "/api/v1/keys", triggerKey).Code)
	assert.Equal(t, http.StatusForbidden, do(router, "POST", "/api/v1/orgs/acme/results", triggerKey).Code)

	// Ingest scope is confined to the results endpoint.
	assert.Equal(t, http.StatusOK, do(router, "POST", "/api/v1/orgs/acme/results", ingestKey).Code)
	assert.Equal(t, http.StatusForbidden, do(router, "POST", "/api/v1/tenants/g1/sync", ingestKey).Code)

	// Admin scope manages keys and tenant setup.
	assert.Equal(t, http.StatusCreated, do(router, "POST", "/api/v1/keys", adminKey).Code)
	assert.Equal(t, http.StatusOK, do(router, "PUT", "/api/v1/tenants/g1/org", adminKey).Code)
	assert.Equal(t, http.StatusForbidden, do(router, "GET", "/api/v1/tenants/g1", adminKey).Code)
}

func TestRouter_ForceSyncRequiresAdmin(t *testing.T) {
	router := newTestRouter(t)

	// The trigger key holds the route's scope, but force needs admin on
	// top of it.
	w := do(router, "POST", "/api/v1/tenants/g1/sync?force=true", triggerKey)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_NilHandlerIs501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(mock.NewMockStore()),
		RateLimit: mw.NewRateLimit(stubCache{}, 60),
	})

	w := do(router, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}
