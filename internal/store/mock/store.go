// Package mock provides an in-memory store.Store for testing.
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

// MockStore satisfies store.Store with in-memory maps. Error fields, when
// set, make the corresponding method fail; everything else behaves like the
// real store, including ErrNotFound semantics.
type MockStore struct {
	mu sync.Mutex

	Tenants       map[string]*models.Tenant
	UserLinks     map[string]*models.UserLink
	Orgs          map[string]*models.Organization
	Contributions map[string]map[string]models.Contribution
	APIKeys       map[uuid.UUID]*models.APIKey

	RecordSyncErr  error
	SetUserLinkErr error
	UpsertOrgErr   error

	RecordSyncCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Tenants:       make(map[string]*models.Tenant),
		UserLinks:     make(map[string]*models.UserLink),
		Orgs:          make(map[string]*models.Organization),
		Contributions: make(map[string]map[string]models.Contribution),
		APIKeys:       make(map[uuid.UUID]*models.APIKey),
	}
}

func (m *MockStore) Ping(ctx context.Context) error { return nil }

func (m *MockStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockStore) UpsertTenant(ctx context.Context, id, name string) (*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	t, ok := m.Tenants[id]
	if !ok {
		t = &models.Tenant{ID: id, CreatedAt: now}
		m.Tenants[id] = t
	}
	t.Name = name
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (m *MockStore) LinkTenantOrg(ctx context.Context, id, orgSlug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	t.GitHubOrg = &orgSlug
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockStore) ListTenantsByOrg(ctx context.Context, orgSlug string) ([]*models.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Tenant
	for _, t := range m.Tenants {
		if t.GitHubOrg != nil && *t.GitHubOrg == orgSlug {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MockStore) RecordSync(ctx context.Context, id string, at time.Time, status string, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordSyncCalls++
	if m.RecordSyncErr != nil {
		return m.RecordSyncErr
	}
	t, ok := m.Tenants[id]
	if !ok {
		return store.ErrNotFound
	}
	t.LastSyncAt = &at
	t.LastSyncStatus = &status
	t.LastSyncError = errMsg
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockStore) GetUserLink(ctx context.Context, discordUserID string) (*models.UserLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.UserLinks[discordUserID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MockStore) SetUserLink(ctx context.Context, link *models.UserLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetUserLinkErr != nil {
		return m.SetUserLinkErr
	}
	now := time.Now().UTC()
	cp := *link
	if existing, ok := m.UserLinks[link.DiscordUserID]; ok {
		cp.LinkedAt = existing.LinkedAt
	} else {
		cp.LinkedAt = now
	}
	cp.UpdatedAt = now
	m.UserLinks[link.DiscordUserID] = &cp
	return nil
}

func (m *MockStore) DeleteUserLink(ctx context.Context, discordUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.UserLinks[discordUserID]; !ok {
		return store.ErrNotFound
	}
	delete(m.UserLinks, discordUserID)
	return nil
}

func (m *MockStore) ListUserLinks(ctx context.Context, discordUserIDs []string) ([]*models.UserLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.UserLink
	for _, id := range discordUserIDs {
		if l, ok := m.UserLinks[id]; ok {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockStore) GetOrganization(ctx context.Context, slug string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.Orgs[slug]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockStore) UpsertOrgMetrics(ctx context.Context, slug string, metrics models.OrgMetrics, syncedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertOrgErr != nil {
		return m.UpsertOrgErr
	}
	now := time.Now().UTC()
	o, ok := m.Orgs[slug]
	if !ok {
		o = &models.Organization{Slug: slug, CreatedAt: now}
		m.Orgs[slug] = o
	}
	o.Metrics = metrics
	o.SyncedAt = &syncedAt
	o.UpdatedAt = now
	return nil
}

func (m *MockStore) UpsertContributions(ctx context.Context, slug string, contribs []models.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.Contributions[slug]
	if !ok {
		byUser = make(map[string]models.Contribution)
		m.Contributions[slug] = byUser
	}
	now := time.Now().UTC()
	for _, c := range contribs {
		c.OrgSlug = slug
		c.UpdatedAt = now
		byUser[c.GitHubUsername] = c
	}
	return nil
}

func (m *MockStore) GetContributions(ctx context.Context, slug string, usernames []string) (map[string]models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.Contribution)
	byUser := m.Contributions[slug]
	for _, u := range usernames {
		if c, ok := byUser[u]; ok {
			out[u] = c
		}
	}
	return out, nil
}

func (m *MockStore) TopContributorsByPRs(ctx context.Context, slug string, limit int) ([]models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Contribution
	for _, c := range m.Contributions[slug] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PRCount != out[j].PRCount {
			return out[i].PRCount > out[j].PRCount
		}
		return out[i].GitHubUsername < out[j].GitHubUsername
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.APIKeys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.APIKeys[id]; ok {
		now := time.Now().UTC()
		k.LastUsedAt = &now
	}
	return nil
}

func (m *MockStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *key
	m.APIKeys[key.ID] = &cp
	return nil
}

func (m *MockStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.APIKey
	for _, k := range m.APIKeys {
		if k.DeletedAt == nil {
			cp := *k
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.APIKeys[id]
	if !ok || k.DeletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	k.DeletedAt = &now
	return nil
}
