package models

import "time"

// GitHubIdentity is the resolved identity delivered by a completed OAuth
// handshake.
type GitHubIdentity struct {
	UserID   int64  `json:"github_user_id"`
	Username string `json:"github_username"`
}

// UserLink is a persistent Discord-to-GitHub account mapping. Global, not
// per-tenant: a user links once and the mapping follows them into every
// server the bot shares with them.
type UserLink struct {
	DiscordUserID    string    `db:"discord_user_id"    json:"discord_user_id"`
	GitHubUserID     int64     `db:"github_user_id"     json:"github_user_id"`
	GitHubUsername   string    `db:"github_username"    json:"github_username"`
	LastLinkedTenant string    `db:"last_linked_tenant" json:"last_linked_tenant"`
	LinkedAt         time.Time `db:"linked_at"          json:"linked_at"`
	UpdatedAt        time.Time `db:"updated_at"         json:"updated_at"`
}
