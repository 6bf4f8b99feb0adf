package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "gitbridge/internal/api/middleware"
	"gitbridge/internal/api/response"
	"gitbridge/internal/metrics"
	"gitbridge/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	StartLinkHandler    http.HandlerFunc
	LinkCallbackHandler http.HandlerFunc
	GetUserLinkHandler  http.HandlerFunc
	UnlinkHandler       http.HandlerFunc

	SetupTenantHandler http.HandlerFunc
	GetTenantHandler   http.HandlerFunc
	RequestSyncHandler http.HandlerFunc
	ReconcileHandler   http.HandlerFunc
	IngestHandler      http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check and Prometheus scrape target
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Browser-facing OAuth endpoints: no API key, rate limited by client IP
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimit.LimitByIP)
		r.Get("/auth/link/{userID}", orNotImplemented(deps.StartLinkHandler))
		r.Get("/auth/callback", orNotImplemented(deps.LinkCallbackHandler))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeSyncTrigger))
			r.Get("/api/v1/users/{userID}/link", orNotImplemented(deps.GetUserLinkHandler))
			r.Delete("/api/v1/users/{userID}/link", orNotImplemented(deps.UnlinkHandler))
			r.Get("/api/v1/tenants/{tenantID}", orNotImplemented(deps.GetTenantHandler))
			r.Post("/api/v1/tenants/{tenantID}/sync", orNotImplemented(deps.RequestSyncHandler))
			r.Post("/api/v1/tenants/{tenantID}/reconcile", orNotImplemented(deps.ReconcileHandler))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeSyncIngest))
			r.Post("/api/v1/orgs/{slug}/results", orNotImplemented(deps.IngestHandler))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))
			r.Put("/api/v1/tenants/{tenantID}/org", orNotImplemented(deps.SetupTenantHandler))
			r.Post("/api/v1/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented guards routes whose handlers are not wired yet.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not implemented", nil)
	}
}
