package models

import "time"

// Organization is one GitHub organization whose contribution data is
// tracked. Organizations are shared: any number of tenants may link to the
// same slug. All writes to organization data are idempotent upserts so that
// overlapping refreshes triggered by different tenants cannot corrupt it.
type Organization struct {
	Slug      string     `db:"slug"       json:"slug"`
	Metrics   OrgMetrics `db:"metrics"    json:"metrics"`
	SyncedAt  *time.Time `db:"synced_at"  json:"synced_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// OrgMetrics is the aggregate snapshot produced by one refresh run.
// Stored as a single JSONB document keyed by the organization slug.
type OrgMetrics struct {
	Stars        int `json:"stars_count"`
	Forks        int `json:"forks_count"`
	Contributors int `json:"total_contributors"`
	PRs          int `json:"pr_count"`
	Issues       int `json:"issues_count"`
	Commits      int `json:"commits_count"`
}

// Contribution is one contributor's totals within an organization.
type Contribution struct {
	OrgSlug        string    `db:"org_slug"        json:"org_slug"`
	GitHubUsername string    `db:"github_username" json:"github_username"`
	PRCount        int       `db:"pr_count"        json:"pr_count"`
	IssuesCount    int       `db:"issues_count"    json:"issues_count"`
	CommitsCount   int       `db:"commits_count"   json:"commits_count"`
	UpdatedAt      time.Time `db:"updated_at"      json:"updated_at"`
}
