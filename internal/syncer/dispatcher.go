package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gitbridge/internal/cache"
	"gitbridge/internal/githubapi"
	"gitbridge/internal/metrics"
	"gitbridge/internal/store"
	"gitbridge/pkg/models"
)

var ErrOrgNotLinked = errors.New("tenant has no linked organization")

// How long the informational in-flight marker stays visible. The pipeline
// normally finishes well inside this.
const statusTTL = 30 * time.Minute

// Outcome is the result of a refresh request that did not error. A denied
// request is a normal negative answer carrying the remaining wait, not a
// failure.
type Outcome struct {
	Accepted  bool          `json:"accepted"`
	Remaining time.Duration `json:"-"`
}

// Dispatcher gates and submits the shared refresh workflow. It fires the
// dispatch and returns; run completion is observed later, when the pipeline
// posts its results back and reconciliation is invoked. Submission failures
// are recorded and surfaced once, with no automatic retry: the run is
// expensive and diagnosing a rejected dispatch belongs to a human.
type Dispatcher struct {
	store    store.Store
	trigger  githubapi.Trigger
	cache    cache.Cache
	cooldown time.Duration
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(s store.Store, t githubapi.Trigger, c cache.Cache, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{store: s, trigger: t, cache: c, cooldown: cooldown}
}

// RequestRefresh asks the cooldown gate for permission and, if granted,
// dispatches the refresh for the tenant's linked organization.
func (d *Dispatcher) RequestRefresh(ctx context.Context, tenantID string) (Outcome, error) {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load tenant: %w", err)
	}
	if tenant.GitHubOrg == nil {
		return Outcome{}, ErrOrgNotLinked
	}

	ok, remaining := MayDispatch(tenant, time.Now(), d.cooldown)
	if !ok {
		metrics.SyncDispatches.WithLabelValues("denied").Inc()
		slog.Info("refresh denied by cooldown",
			"tenant_id", tenantID, "remaining", remaining.Round(time.Second))
		return Outcome{Accepted: false, Remaining: remaining}, nil
	}

	if err := d.dispatch(ctx, tenant); err != nil {
		return Outcome{}, err
	}
	return Outcome{Accepted: true}, nil
}

// ForceRefresh dispatches regardless of cooldown state. Used exactly once,
// right after setup links the organization, so a stale timestamp can never
// block the first sync.
func (d *Dispatcher) ForceRefresh(ctx context.Context, tenantID string) error {
	tenant, err := d.store.GetTenant(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load tenant: %w", err)
	}
	if tenant.GitHubOrg == nil {
		return ErrOrgNotLinked
	}
	return d.dispatch(ctx, tenant)
}

func (d *Dispatcher) dispatch(ctx context.Context, tenant *models.Tenant) error {
	org := *tenant.GitHubOrg
	now := time.Now()

	if err := d.trigger.DispatchRefresh(ctx, org); err != nil {
		msg := err.Error()
		if recErr := d.store.RecordSync(ctx, tenant.ID, now, models.SyncStatusFailed, &msg); recErr != nil {
			slog.Error("record failed sync", "tenant_id", tenant.ID, "error", recErr)
		}
		metrics.SyncDispatches.WithLabelValues("failed").Inc()
		return fmt.Errorf("dispatch refresh for %s: %w", org, err)
	}

	if err := d.store.RecordSync(ctx, tenant.ID, now, models.SyncStatusDispatched, nil); err != nil {
		// The workflow is already running; losing the bookkeeping only
		// weakens the cooldown, so log and move on.
		slog.Error("record dispatched sync", "tenant_id", tenant.ID, "error", err)
	}
	if err := d.cache.SetSyncStatus(ctx, org, models.SyncStatusDispatched, statusTTL); err != nil {
		slog.Warn("set sync status marker", "org", org, "error", err)
	}

	metrics.SyncDispatches.WithLabelValues("accepted").Inc()
	slog.Info("refresh dispatched", "tenant_id", tenant.ID, "org", org)
	return nil
}
