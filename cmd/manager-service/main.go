// cmd/manager-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stackmgr/internal/api"
	"stackmgr/internal/apps"
	"stackmgr/internal/containers"
	"stackmgr/internal/health"
	"stackmgr/internal/identity"
	"stackmgr/internal/orchestrator"
	"stackmgr/internal/readiness"
	"stackmgr/pkg/config"
	"stackmgr/pkg/db"
	"stackmgr/pkg/logger"
	"stackmgr/pkg/middleware"
	"stackmgr/pkg/services"
)

// claimTTL bounds how long a crashed run can block the next one.
const claimTTL = 30 * time.Minute

func main() {
	// 1. Configuration, logger and tracing.
	cfg := config.Load()
	appLog := logger.New(cfg.Env)
	defer appLog.Sync()
	shutdownTracing := middleware.InitTracing(context.Background(), "manager-service", appLog)

	// 2. Service directory and install claim (Postgres or Redis when
	// configured, in-memory otherwise).
	dbPool := db.MustConnect(cfg, appLog)
	rdb := db.MustRedis(cfg, appLog)
	var (
		store   services.Store
		claimer services.Claimer
	)
	if dbPool != nil {
		store = services.NewPostgresStore(dbPool, appLog)
		claimer = services.NewPostgresClaimer(dbPool, claimTTL)
	} else {
		store = services.NewMemoryStore()
		claimer = services.NewMemoryClaimer()
	}
	if rdb != nil {
		claimer = services.NewRedisClaimer(rdb, claimTTL)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		appLog.Fatalw("ensure schema", "err", err)
	}
	catalog, err := services.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		appLog.Fatalw("load catalog", "path", cfg.CatalogFile, "err", err)
	}

	// 3. Container runtime and identity provider.
	docker, err := containers.NewDocker()
	if err != nil {
		appLog.Fatalw("docker client", "err", err)
	}
	defer docker.Close()
	exec := containers.NewExecutor(docker, appLog)
	kc := identity.NewKeycloak(identity.KeycloakConfig{
		BaseURL:       cfg.KeycloakURL,
		Realm:         cfg.RealmName,
		AdminUser:     cfg.KeycloakAdmin,
		AdminPassword: cfg.KeycloakAdminPassword,
	}, appLog)
	tokens := identity.NewTokenIssuer(cfg.RealmURL(), cfg.DashboardClientID, kc)
	waiter := readiness.NewWaiter(appLog)

	// 4. Installation pipeline.
	dependents := apps.Defaults(apps.Config{
		KeycloakURL:       cfg.KeycloakURL,
		Realm:             cfg.RealmName,
		ReadyInterval:     cfg.ReadyInterval,
		ReadyMaxAttempts:  cfg.ReadyMaxAttempts,
		FileReadyAttempts: cfg.FileReadyMaxAttempts,
		SettleDelay:       cfg.ForgejoSettleDelay,
	}, apps.Deps{Identity: kc, Exec: exec, Waiter: waiter, Log: appLog}, cfg.ForgejoAdminPassword)
	installer := orchestrator.New(orchestrator.Options{
		Identity:           kc,
		Sessions:           tokens,
		Waiter:             waiter,
		Store:              store,
		Claimer:            claimer,
		Catalog:            catalog,
		Services:           dependents,
		KeycloakURL:        cfg.KeycloakURL,
		RealmName:          cfg.RealmName,
		DashboardClientID:  cfg.DashboardClientID,
		ReadyInterval:      cfg.ReadyInterval,
		ReadyMaxAttempts:   cfg.ReadyMaxAttempts,
		StrictAdminSession: cfg.StrictAdminSession,
		Log:                appLog,
	})

	// 5. HTTP surface.
	app := api.New(appLog, api.Config{
		Domain:          cfg.Domain,
		InstallLockFile: cfg.InstallLockFile,
		CORSOrigins:     cfg.CORSOrigins,
		ClientDir:       cfg.ClientDir,
		LogTail:         cfg.LogTail,
	}, api.Deps{
		Installer: installer,
		Store:     store,
		Catalog:   catalog,
		Users:     kc,
		Tokens:    tokens,
		Health:    health.NewChecker(catalog.InternalURLs(), nil),
		Logs:      docker,
		Auth: middleware.JWTAuth(middleware.AuthConfig{
			JWKSURL: cfg.JWKSURL(),
			Issuers: []string{cfg.RealmURL(), cfg.PublicRealmURL()},
		}, appLog),
	})

	router := chi.NewRouter()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recover(appLog))
	router.Use(middleware.DebugWriteHeader(appLog))
	router.Use(middleware.Tracing("manager-service", "/api/setup"))
	router.Get("/metrics", promhttp.Handler().ServeHTTP)
	router.Mount("/", app.Handler())

	// 6. Serve until SIGINT/SIGTERM. No write timeout: setup streams for minutes.
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		appLog.Infow("manager-service listening", "addr", cfg.HTTPAddr, "domain", cfg.Domain)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
	_ = shutdownTracing(ctx)
	if dbPool != nil {
		dbPool.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	fmt.Println("manager-service stopped")
}
