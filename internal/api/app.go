// Package api is the manager's HTTP surface: the streamed install trigger,
// the installed flag and the authenticated dashboard routes.
package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"stackmgr/internal/health"
	"stackmgr/internal/identity"
	"stackmgr/internal/orchestrator"
	"stackmgr/pkg/services"
)

type Installer interface {
	Run(ctx context.Context, req orchestrator.Request, sink orchestrator.Sink) (orchestrator.Result, error)
}

type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*identity.Session, error)
}

type HealthChecker interface {
	StatusAll(ctx context.Context, slugs []string) map[string]health.Status
}

type LogSource interface {
	Logs(ctx context.Context, service string, tail int) (string, error)
}

// Config holds api specific configuration.
type Config struct {
	Domain          string
	InstallLockFile string
	CORSOrigins     []string
	ClientDir       string
	LogTail         int
}

// Deps are the collaborators handlers call into.
type Deps struct {
	Installer Installer
	Store     services.Store
	Catalog   services.Catalog
	Users     identity.Directory
	Tokens    CodeExchanger
	Health    HealthChecker
	Logs      LogSource
	// Auth guards the dashboard routes.
	Auth func(http.Handler) http.Handler
}

// App is the api application container. Handlers are methods on it.
type App struct {
	log  *zap.SugaredLogger
	cfg  Config
	deps Deps
}

func New(log *zap.SugaredLogger, cfg Config, deps Deps) *App {
	if cfg.LogTail <= 0 {
		cfg.LogTail = 100
	}
	if deps.Auth == nil {
		deps.Auth = func(next http.Handler) http.Handler { return next }
	}
	return &App{log: log, cfg: cfg, deps: deps}
}
