package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"gitbridge/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	UpsertTenant(ctx context.Context, id, name string) (*models.Tenant, error)
	LinkTenantOrg(ctx context.Context, id, orgSlug string) error
	ListTenantsByOrg(ctx context.Context, orgSlug string) ([]*models.Tenant, error)
	RecordSync(ctx context.Context, id string, at time.Time, status string, errMsg *string) error

	GetUserLink(ctx context.Context, discordUserID string) (*models.UserLink, error)
	SetUserLink(ctx context.Context, link *models.UserLink) error
	DeleteUserLink(ctx context.Context, discordUserID string) error
	ListUserLinks(ctx context.Context, discordUserIDs []string) ([]*models.UserLink, error)

	GetOrganization(ctx context.Context, slug string) (*models.Organization, error)
	UpsertOrgMetrics(ctx context.Context, slug string, metrics models.OrgMetrics, syncedAt time.Time) error
	UpsertContributions(ctx context.Context, slug string, contribs []models.Contribution) error
	GetContributions(ctx context.Context, slug string, usernames []string) (map[string]models.Contribution, error)
	TopContributorsByPRs(ctx context.Context, slug string, limit int) ([]models.Contribution, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}
