package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gitbridge/internal/api/response"
	"gitbridge/internal/reconciler"
	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

const reconcileTimeout = 5 * time.Minute

// IngestRequest is the payload the refresh pipeline posts when a run
// finishes. Re-posting the same payload is harmless; every write below is
// an upsert.
type IngestRequest struct {
	Metrics       models.OrgMetrics     `json:"metrics"`
	Contributions []models.Contribution `json:"contributions"`
}

// NewIngestResultsHandler returns the handler for POST /api/v1/orgs/{slug}/results.
// After persisting the snapshot it reconciles every tenant linked to the
// organization in the background, one goroutine per tenant, and returns 202
// immediately so the pipeline is not held open.
func NewIngestResultsHandler(s store.Store, rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		now := time.Now()
		if err := s.UpsertOrgMetrics(r.Context(), slug, req.Metrics, now); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store metrics", nil)
			return
		}
		if err := s.UpsertContributions(r.Context(), slug, req.Contributions); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store contributions", nil)
			return
		}

		tenants, err := s.ListTenantsByOrg(r.Context(), slug)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list tenants", nil)
			return
		}

		for _, t := range tenants {
			go func(tenantID string) {
				ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
				defer cancel()
				if _, err := rec.ReconcileTenant(ctx, tenantID); err != nil {
					slog.Error("post-ingest reconciliation failed", "tenant_id", tenantID, "org", slug, "error", err)
				}
			}(t.ID)
		}

		response.Accepted(w, map[string]any{
			"org":               slug,
			"contributors":      len(req.Contributions),
			"tenants_reconciling": len(tenants),
		})
	}
}
