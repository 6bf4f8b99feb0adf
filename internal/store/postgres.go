package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gitbridge/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, github_org, last_sync_at, last_sync_status, last_sync_error, created_at, updated_at
		 FROM tenants WHERE id = $1`, id,
	).Scan(&t.ID, &t.Name, &t.GitHubOrg, &t.LastSyncAt, &t.LastSyncStatus, &t.LastSyncError, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// UpsertTenant registers a tenant on first contact. Re-upserting an existing
// tenant only refreshes its name; sync bookkeeping and org link are untouched.
func (s *PostgresStore) UpsertTenant(ctx context.Context, id, name string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		 RETURNING id, name, github_org, last_sync_at, last_sync_status, last_sync_error, created_at, updated_at`,
		id, name,
	).Scan(&t.ID, &t.Name, &t.GitHubOrg, &t.LastSyncAt, &t.LastSyncStatus, &t.LastSyncError, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert tenant: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) LinkTenantOrg(ctx context.Context, id, orgSlug string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET github_org = $2, updated_at = NOW() WHERE id = $1`, id, orgSlug)
	if err != nil {
		return fmt.Errorf("link tenant org: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTenantsByOrg(ctx context.Context, orgSlug string) ([]*models.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, github_org, last_sync_at, last_sync_status, last_sync_error, created_at, updated_at
		 FROM tenants WHERE github_org = $1 ORDER BY id`, orgSlug)
	if err != nil {
		return nil, fmt.Errorf("list tenants by org: %w", err)
	}
	defer rows.Close()

	var tenants []*models.Tenant
	for rows.Next() {
		var t models.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.GitHubOrg, &t.LastSyncAt, &t.LastSyncStatus,
			&t.LastSyncError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	return tenants, rows.Err()
}

// RecordSync writes the cooldown bookkeeping for one tenant only. A nil
// errMsg clears any error left by a previous failed attempt.
func (s *PostgresStore) RecordSync(ctx context.Context, id string, at time.Time, status string, errMsg *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET last_sync_at = $2, last_sync_status = $3, last_sync_error = $4, updated_at = NOW()
		 WHERE id = $1`, id, at, status, errMsg)
	if err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- User links ---

func (s *PostgresStore) GetUserLink(ctx context.Context, discordUserID string) (*models.UserLink, error) {
	var l models.UserLink
	err := s.pool.QueryRow(ctx,
		`SELECT discord_user_id, github_user_id, github_username, last_linked_tenant, linked_at, updated_at
		 FROM user_links WHERE discord_user_id = $1`, discordUserID,
	).Scan(&l.DiscordUserID, &l.GitHubUserID, &l.GitHubUsername, &l.LastLinkedTenant, &l.LinkedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user link: %w", err)
	}
	return &l, nil
}

func (s *PostgresStore) SetUserLink(ctx context.Context, link *models.UserLink) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_links (discord_user_id, github_user_id, github_username, last_linked_tenant)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (discord_user_id) DO UPDATE SET
		   github_user_id = EXCLUDED.github_user_id,
		   github_username = EXCLUDED.github_username,
		   last_linked_tenant = EXCLUDED.last_linked_tenant,
		   updated_at = NOW()`,
		link.DiscordUserID, link.GitHubUserID, link.GitHubUsername, link.LastLinkedTenant)
	if err != nil {
		return fmt.Errorf("set user link: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUserLink(ctx context.Context, discordUserID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_links WHERE discord_user_id = $1`, discordUserID)
	if err != nil {
		return fmt.Errorf("delete user link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListUserLinks(ctx context.Context, discordUserIDs []string) ([]*models.UserLink, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT discord_user_id, github_user_id, github_username, last_linked_tenant, linked_at, updated_at
		 FROM user_links WHERE discord_user_id = ANY($1)`, discordUserIDs)
	if err != nil {
		return nil, fmt.Errorf("list user links: %w", err)
	}
	defer rows.Close()

	var links []*models.UserLink
	for rows.Next() {
		var l models.UserLink
		if err := rows.Scan(&l.DiscordUserID, &l.GitHubUserID, &l.GitHubUsername,
			&l.LastLinkedTenant, &l.LinkedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user link: %w", err)
		}
		links = append(links, &l)
	}
	return links, rows.Err()
}

// --- Organizations ---

func (s *PostgresStore) GetOrganization(ctx context.Context, slug string) (*models.Organization, error) {
	var o models.Organization
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT slug, metrics, synced_at, created_at, updated_at FROM organizations WHERE slug = $1`, slug,
	).Scan(&o.Slug, &raw, &o.SyncedAt, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if err := json.Unmarshal(raw, &o.Metrics); err != nil {
		return nil, fmt.Errorf("decode org metrics: %w", err)
	}
	return &o, nil
}

// UpsertOrgMetrics replaces the metrics snapshot for an organization.
// Applying the same snapshot twice leaves identical state, which is what
// makes overlapping refreshes from co-tenants safe.
func (s *PostgresStore) UpsertOrgMetrics(ctx context.Context, slug string, metrics models.OrgMetrics, syncedAt time.Time) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("encode org metrics: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO organizations (slug, metrics, synced_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (slug) DO UPDATE SET
		   metrics = EXCLUDED.metrics,
		   synced_at = EXCLUDED.synced_at,
		   updated_at = NOW()`,
		slug, raw, syncedAt)
	if err != nil {
		return fmt.Errorf("upsert org metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertContributions(ctx context.Context, slug string, contribs []models.Contribution) error {
	batch := &pgx.Batch{}
	for _, c := range contribs {
		batch.Queue(
			`INSERT INTO org_contributions (org_slug, github_username, pr_count, issues_count, commits_count)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (org_slug, github_username) DO UPDATE SET
			   pr_count = EXCLUDED.pr_count,
			   issues_count = EXCLUDED.issues_count,
			   commits_count = EXCLUDED.commits_count,
			   updated_at = NOW()`,
			slug, c.GitHubUsername, c.PRCount, c.IssuesCount, c.CommitsCount)
	}
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range contribs {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert contribution: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetContributions(ctx context.Context, slug string, usernames []string) (map[string]models.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT org_slug, github_username, pr_count, issues_count, commits_count, updated_at
		 FROM org_contributions WHERE org_slug = $1 AND github_username = ANY($2)`, slug, usernames)
	if err != nil {
		return nil, fmt.Errorf("get contributions: %w", err)
	}
	defer rows.Close()

	contribs := make(map[string]models.Contribution, len(usernames))
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.OrgSlug, &c.GitHubUsername, &c.PRCount, &c.IssuesCount, &c.CommitsCount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		contribs[c.GitHubUsername] = c
	}
	return contribs, rows.Err()
}

func (s *PostgresStore) TopContributorsByPRs(ctx context.Context, slug string, limit int) ([]models.Contribution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT org_slug, github_username, pr_count, issues_count, commits_count, updated_at
		 FROM org_contributions WHERE org_slug = $1 AND pr_count > 0
		 ORDER BY pr_count DESC, github_username ASC LIMIT $2`, slug, limit)
	if err != nil {
		return nil, fmt.Errorf("top contributors: %w", err)
	}
	defer rows.Close()

	var top []models.Contribution
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.OrgSlug, &c.GitHubUsername, &c.PRCount, &c.IssuesCount, &c.CommitsCount, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		top = append(top, c)
	}
	return top, rows.Err()
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
