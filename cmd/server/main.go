// Package main is the entrypoint for the gitbridge API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gitbridge/internal/api"
	"gitbridge/internal/api/handler"
	mw "gitbridge/internal/api/middleware"
	"gitbridge/internal/api/response"
	"gitbridge/internal/cache"
	"gitbridge/internal/config"
	"gitbridge/internal/discord"
	"gitbridge/internal/githubapi"
	"gitbridge/internal/linker"
	"gitbridge/internal/metrics"
	"gitbridge/internal/reconciler"
	"gitbridge/internal/store"
	"gitbridge/internal/syncer"
)

const shutdownTimeout = 30 * time.Second
const janitorInterval = 5 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "cooldown", cfg.Sync.Cooldown)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Register Prometheus metrics
	metrics.Init()

	// 6. Create store and external clients
	pgStore := store.NewPostgresStore(pool)
	discordClient := discord.NewHTTPClient(cfg.Discord)
	dispatchClient := githubapi.NewDispatchClient(cfg.GitHub)
	oauthClient := githubapi.NewOAuthClient(cfg.GitHub, cfg.Server.BaseURL+"/auth/callback")

	// 7. Build the core services. The broker is created here and handed to
	// both execution contexts; it is the only shared mutable state.
	broker := linker.NewBroker(cfg.Sync.PollInterval, cfg.Sync.SessionTTL)
	go broker.RunJanitor(ctx, janitorInterval)

	linkSvc := linker.NewService(broker, pgStore, oauthClient, cfg.Sync.LinkTimeout)
	dispatcher := syncer.NewDispatcher(pgStore, dispatchClient, redisCache, cfg.Sync.Cooldown)
	rec := reconciler.New(pgStore, discordClient)

	// 8. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache),

		StartLinkHandler:    handler.NewStartLinkHandler(linkSvc),
		LinkCallbackHandler: handler.NewLinkCallbackHandler(linkSvc),
		GetUserLinkHandler:  handler.NewGetUserLinkHandler(linkSvc),
		UnlinkHandler:       handler.NewUnlinkHandler(linkSvc),

		SetupTenantHandler: handler.NewSetupTenantHandler(pgStore, dispatcher, rec),
		GetTenantHandler:   handler.NewGetTenantHandler(pgStore),
		RequestSyncHandler: handler.NewRequestSyncHandler(dispatcher),
		ReconcileHandler:   handler.NewReconcileHandler(rec),
		IngestHandler:      handler.NewIngestResultsHandler(pgStore, rec),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
