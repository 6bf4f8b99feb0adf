package models

import (
	"time"

	"github.com/google/uuid"
)

// API key scopes. The refresh pipeline authenticates with sync:ingest;
// schedulers and the bot process use sync:trigger; key management and
// forced syncs require admin.
const (
	ScopeSyncTrigger = "sync:trigger"
	ScopeSyncIngest  = "sync:ingest"
	ScopeAdmin       = "admin"
)

// APIKey represents an authentication key for the management and pipeline
// endpoints. Raw keys are shown once at creation; only the bcrypt hash is
// stored.
type APIKey struct {
	ID         uuid.UUID  `db:"id"           json:"id"`
	Name       string     `db:"name"         json:"name"`
	KeyHash    string     `db:"key_hash"     json:"-"`
	KeyPrefix  string     `db:"key_prefix"   json:"key_prefix"`
	Scopes     []string   `db:"scopes"       json:"scopes"`
	LastUsedAt *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	DeletedAt  *time.Time `db:"deleted_at"   json:"-"`
	CreatedAt  time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"   json:"updated_at"`
}
