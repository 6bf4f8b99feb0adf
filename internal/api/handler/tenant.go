package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gitbridge/internal/api/response"
	"gitbridge/internal/reconciler"
	"gitbridge/internal/store"
	"gitbridge/internal/syncer"
)

// NewSetupTenantHandler returns the handler for PUT /api/v1/tenants/{tenantID}/org.
// This is the setup completion step: it registers the tenant, links the
// organization, and force-dispatches the first refresh so a stale cooldown
// timestamp can never block it. The initial reconciliation runs in the
// background to build the category skeleton before any data arrives.
func NewSetupTenantHandler(s store.Store, d *syncer.Dispatcher, rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := chi.URLParam(r, "tenantID")

		var req struct {
			Name      string `json:"name"`
			GitHubOrg string `json:"github_org"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.GitHubOrg == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "github_org is required", nil)
			return
		}
		if req.Name == "" {
			req.Name = tenantID
		}

		tenant, err := s.UpsertTenant(r.Context(), tenantID, req.Name)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to register tenant", nil)
			return
		}
		if err := s.LinkTenantOrg(r.Context(), tenant.ID, req.GitHubOrg); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to link organization", nil)
			return
		}

		if err := d.ForceRefresh(r.Context(), tenant.ID); err != nil {
			// Setup succeeded; only the first dispatch failed. Report both.
			response.JSON(w, map[string]any{
				"tenant_id":      tenant.ID,
				"github_org":     req.GitHubOrg,
				"initial_sync":   "failed",
				"dispatch_error": err.Error(),
			})
			return
		}

		go func(tenantID string) {
			ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
			defer cancel()
			if _, err := rec.ReconcileTenant(ctx, tenantID); err != nil {
				slog.Error("setup reconciliation failed", "tenant_id", tenantID, "error", err)
			}
		}(tenant.ID)

		response.JSON(w, map[string]any{
			"tenant_id":    tenant.ID,
			"github_org":   req.GitHubOrg,
			"initial_sync": "dispatched",
		})
	}
}

// NewGetTenantHandler returns the handler for GET /api/v1/tenants/{tenantID},
// exposing the sync bookkeeping for status displays.
func NewGetTenantHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, err := s.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Unknown tenant", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load tenant", nil)
			return
		}
		response.JSON(w, tenant)
	}
}

// NewReconcileHandler returns the handler for POST /api/v1/tenants/{tenantID}/reconcile.
// Runs synchronously and returns the summary; callers with a response-time
// ceiling should use the async path via results ingest instead.
func NewReconcileHandler(rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := rec.ReconcileTenant(r.Context(), chi.URLParam(r, "tenantID"))
		switch {
		case errors.Is(err, store.ErrNotFound):
			response.Error(w, http.StatusNotFound, "TENANT_NOT_FOUND", "Unknown tenant", nil)
			return
		case errors.Is(err, reconciler.ErrOrgNotLinked):
			response.Error(w, http.StatusConflict, "ORG_NOT_LINKED",
				"Tenant has no linked organization; run setup first", nil)
			return
		case err != nil:
			response.Error(w, http.StatusBadGateway, "RECONCILE_FAILED", err.Error(), nil)
			return
		}
		response.JSON(w, summary)
	}
}
