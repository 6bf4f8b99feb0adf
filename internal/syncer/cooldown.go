package syncer

import (
	"time"

	"gitbridge/pkg/models"
)

// MayDispatch reports whether a tenant may trigger the shared refresh right
// now, and if not, how long it must wait. It is a pure function of the
// tenant's own cooldown fields; two tenants tracking the same organization
// gate independently and may both pass at the same instant.
//
// Only a previously *dispatched* sync starts a cooldown window. A failed
// submission may be retried immediately, and a tenant that has never synced
// is never gated.
func MayDispatch(t *models.Tenant, now time.Time, cooldown time.Duration) (bool, time.Duration) {
	if t.LastSyncAt == nil {
		return true, 0
	}
	if t.LastSyncStatus == nil || *t.LastSyncStatus != models.SyncStatusDispatched {
		return true, 0
	}

	elapsed := now.Sub(*t.LastSyncAt)
	if elapsed >= cooldown {
		return true, 0
	}
	return false, cooldown - elapsed
}
