package models

import "time"

const (
	SyncStatusDispatched = "dispatched"
	SyncStatusFailed     = "failed"
)

// Tenant is one Discord server (guild) using the bot. The ID is the guild's
// snowflake, assigned by Discord. GitHubOrg is nil until setup links the
// server to an organization. The last_sync fields are per-tenant cooldown
// bookkeeping and are never shared between tenants, even when two tenants
// track the same organization.
type Tenant struct {
	ID             string     `db:"id"               json:"id"`
	Name           string     `db:"name"             json:"name"`
	GitHubOrg      *string    `db:"github_org"       json:"github_org,omitempty"`
	LastSyncAt     *time.Time `db:"last_sync_at"     json:"last_sync_at,omitempty"`
	LastSyncStatus *string    `db:"last_sync_status" json:"last_sync_status,omitempty"`
	LastSyncError  *string    `db:"last_sync_error"  json:"last_sync_error,omitempty"`
	CreatedAt      time.Time  `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"       json:"updated_at"`
}
