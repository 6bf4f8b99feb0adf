package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("gitbridge_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Tenant tests ---

func TestUpsertTenant(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	tenant, err := s.UpsertTenant(ctx, "123456789", "Contributors Guild")
	require.NoError(t, err)
	assert.Equal(t, "123456789", tenant.ID)
	assert.Equal(t, "Contributors Guild", tenant.Name)
	assert.Nil(t, tenant.GitHubOrg)
	assert.Nil(t, tenant.LastSyncAt)

	// Re-upserting refreshes the name and nothing else.
	require.NoError(t, s.LinkTenantOrg(ctx, "123456789", "acme"))
	again, err := s.UpsertTenant(ctx, "123456789", "Renamed Guild")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Guild", again.Name)
	require.NotNil(t, again.GitHubOrg)
	assert.Equal(t, "acme", *again.GitHubOrg)
	assert.Equal(t, tenant.CreatedAt, again.CreatedAt)
}

func TestGetTenant_NotFound(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetTenant(context.Background(), "does-not-exist")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestLinkTenantOrg_UnknownTenant(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))

	err := s.LinkTenantOrg(context.Background(), "missing", "acme")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestListTenantsByOrg(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"g1", "g2", "g3"} {
		_, err := s.UpsertTenant(ctx, id, "Guild "+id)
		require.NoError(t, err)
	}
	require.NoError(t, s.LinkTenantOrg(ctx, "g1", "acme"))
	require.NoError(t, s.LinkTenantOrg(ctx, "g3", "acme"))
	require.NoError(t, s.LinkTenantOrg(ctx, "g2", "other"))

	tenants, err := s.ListTenantsByOrg(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	assert.Equal(t, "g1", tenants[0].ID)
	assert.Equal(t, "g3", tenants[1].ID)
}

func TestRecordSync(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	_, err := s.UpsertTenant(ctx, "g1", "Guild")
	require.NoError(t, err)

	at := time.Now().UTC().Truncate(time.Millisecond)
	errMsg := "workflow dispatch rejected"
	require.NoError(t, s.RecordSync(ctx, "g1", at, models.SyncStatusFailed, &errMsg))

	tenant, err := s.GetTenant(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, tenant.LastSyncAt)
	assert.WithinDuration(t, at, *tenant.LastSyncAt, time.Millisecond)
	require.NotNil(t, tenant.LastSyncStatus)
	assert.Equal(t, models.SyncStatusFailed, *tenant.LastSyncStatus)
	require.NotNil(t, tenant.LastSyncError)
	assert.Equal(t, errMsg, *tenant.LastSyncError)

	// A successful dispatch clears the stored error.
	require.NoError(t, s.RecordSync(ctx, "g1", time.Now().UTC(), models.SyncStatusDispatched, nil))
	tenant, err = s.GetTenant(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusDispatched, *tenant.LastSyncStatus)
	assert.Nil(t, tenant.LastSyncError)
}

// --- User link tests ---

func TestUserLinkLifecycle(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	link := &models.UserLink{
		DiscordUserID:    "d-1",
		GitHubUserID:     42,
		GitHubUsername:   "octocat",
		LastLinkedTenant: "g1",
	}
	require.NoError(t, s.SetUserLink(ctx, link))

	got, err := s.GetUserLink(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.GitHubUserID)
	assert.Equal(t, "octocat", got.GitHubUsername)
	assert.False(t, got.LinkedAt.IsZero())

	// Relinking overwrites the identity in place.
	link.GitHubUserID = 99
	link.GitHubUsername = "newname"
	require.NoError(t, s.SetUserLink(ctx, link))
	got, err = s.GetUserLink(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, int64(99), got.GitHubUserID)

	require.NoError(t, s.DeleteUserLink(ctx, "d-1"))
	_, err = s.GetUserLink(ctx, "d-1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteUserLink(ctx, "d-1"), store.ErrNotFound))
}

func TestListUserLinks(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	for i, id := range []string{"d-1", "d-2", "d-3"} {
		require.NoError(t, s.SetUserLink(ctx, &models.UserLink{
			DiscordUserID:  id,
			GitHubUserID:   int64(i + 1),
			GitHubUsername: "user" + id,
		}))
	}

	links, err := s.ListUserLinks(ctx, []string{"d-1", "d-3", "d-unknown"})
	require.NoError(t, err)
	assert.Len(t, links, 2)
}

// --- Organization tests ---

func TestUpsertOrgMetrics_Idempotent(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	metrics := models.OrgMetrics{Stars: 100, Forks: 20, Contributors: 5, PRs: 40, Issues: 10, Commits: 800}
	syncedAt := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, s.UpsertOrgMetrics(ctx, "acme", metrics, syncedAt))
	require.NoError(t, s.UpsertOrgMetrics(ctx, "acme", metrics, syncedAt))

	org, err := s.GetOrganization(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, metrics, org.Metrics)
	require.NotNil(t, org.SyncedAt)
	assert.WithinDuration(t, syncedAt, *org.SyncedAt, time.Millisecond)
}

func TestGetOrganization_NotFound(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))

	_, err := s.GetOrganization(context.Background(), "nope")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestContributions(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertOrgMetrics(ctx, "acme", models.OrgMetrics{}, time.Now().UTC()))

	contribs := []models.Contribution{
		{GitHubUsername: "alice", PRCount: 30, IssuesCount: 5, CommitsCount: 200},
		{GitHubUsername: "bob", PRCount: 10, IssuesCount: 1, CommitsCount: 50},
		{GitHubUsername: "carol", PRCount: 0, IssuesCount: 8, CommitsCount: 10},
	}
	require.NoError(t, s.UpsertContributions(ctx, "acme", contribs))

	got, err := s.GetContributions(ctx, "acme", []string{"alice", "carol", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 30, got["alice"].PRCount)
	assert.Equal(t, 8, got["carol"].IssuesCount)

	// Upsert replaces counts for existing rows.
	require.NoError(t, s.UpsertContributions(ctx, "acme", []models.Contribution{
		{GitHubUsername: "bob", PRCount: 12, IssuesCount: 1, CommitsCount: 60},
	}))
	got, err = s.GetContributions(ctx, "acme", []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, 12, got["bob"].PRCount)
}

func TestTopContributorsByPRs(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, s.UpsertOrgMetrics(ctx, "acme", models.OrgMetrics{}, time.Now().UTC()))
	require.NoError(t, s.UpsertContributions(ctx, "acme", []models.Contribution{
		{GitHubUsername: "low", PRCount: 1},
		{GitHubUsername: "mid", PRCount: 10},
		{GitHubUsername: "high", PRCount: 50},
		{GitHubUsername: "none", PRCount: 0},
	}))
	// Another org must not leak into the ranking.
	require.NoError(t, s.UpsertOrgMetrics(ctx, "other", models.OrgMetrics{}, time.Now().UTC()))
	require.NoError(t, s.UpsertContributions(ctx, "other", []models.Contribution{
		{GitHubUsername: "outsider", PRCount: 999},
	}))

	top, err := s.TopContributorsByPRs(ctx, "acme", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "high", top[0].GitHubUsername)
	assert.Equal(t, "mid", top[1].GitHubUsername)
	assert.Equal(t, "low", top[2].GitHubUsername)
}

// --- API key tests ---

func TestAPIKeyLifecycle(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "scheduler",
		KeyHash:   "$2a$10$fakehash",
		KeyPrefix: "gb_12345",
		Scopes:    []string{models.ScopeSyncTrigger},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "gb_12345")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "scheduler", keys[0].Name)
	assert.Equal(t, []string{models.ScopeSyncTrigger}, keys[0].Scopes)

	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "gb_12345")
	require.NoError(t, err)
	require.NotNil(t, keys[0].LastUsedAt)

	require.NoError(t, s.RevokeAPIKey(ctx, key.ID))
	keys, err = s.GetAPIKeyByPrefix(ctx, "gb_12345")
	require.NoError(t, err)
	assert.Empty(t, keys, "revoked keys must not authenticate")

	assert.True(t, errors.Is(s.RevokeAPIKey(ctx, key.ID), store.ErrNotFound))
}

func TestCreateAPIKey_DuplicateID(t *testing.T) {
	s := store.NewPostgresStore(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      "first",
		KeyHash:   "hash",
		KeyPrefix: "gb_aaaaa",
		Scopes:    []string{models.ScopeAdmin},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	dup := *key
	dup.Name = "second"
	assert.True(t, errors.Is(s.CreateAPIKey(ctx, &dup), store.ErrDuplicateKey))
}
