package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "gitbridge/internal/api/middleware"
	"gitbridge/internal/api/response"
	"gitbridge/internal/store"
	"gitbridge/internal/syncer"
	"gitbridge/pkg/models"
)

// NewRequestSyncHandler returns the handler for POST /api/v1/tenants/{tenantID}/sync.
// A cooldown denial is a 429 carrying the remaining wait, not an error; a
// submission failure is a 502 reported once, with retry left to the caller.
func NewRequestSyncHandler(d *syncer.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")

		if r.URL.Query().Get("force") == "true" {
			if !mw.HasScope(r, models.ScopeAdmin) {
				response.Error(w, http.StatusForbidden, "FORBIDDEN", "force requires admin scope", nil)
				return
			}
			if err := d.ForceRefresh(r.Context(), tenantID); err != nil {
				writeSyncError(w, err)
				return
			}
			response.Accepted(w, map[string]any{"accepted": true, "forced": true})
			return
		}

		outcome, err := d.RequestRefresh(r.Context(), tenantID)
		if err != nil {
			writeSyncError(w, err)
			return
		}

		if !outcome.Accepted {
			response.Error(w, http.StatusTooManyRequests, "COOLDOWN_ACTIVE",
				"Refresh denied by cooldown", map[string]any{
					"retry_after_seconds": int(outcome.Remaining.Seconds()),
				})
			return
		}
		response.Accepted(w, map[string]any{"accepted": true})
	}
}

func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Unknown tenant", nil)
	case errors.Is(err, syncer.ErrOrgNotLinked):
		response.Error(w, http.StatusConflict, "ORG_NOT_LINKED",
			"Tenant has no linked organization; run setup first", nil)
	default:
		response.Error(w, http.StatusBadGateway, "DISPATCH_FAILED", err.Error(), nil)
	}
}
