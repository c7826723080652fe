// Package apps configures single sign-on for the stack's dependent
// applications by provisioning their OAuth clients and running their admin
// CLIs inside the containers.
package apps

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"stackmgr/internal/containers"
	"stackmgr/internal/identity"
	"stackmgr/internal/orchestrator"
)

// Commands runs shell commands inside named services.
type Commands interface {
	// Stream returns the exit code of the batch. err is only set when the
	// command could not be run or its output could not be read.
	Stream(ctx context.Context, service, user string, commands []string, sink io.Writer) (int, error)
	Capture(ctx context.Context, service, user string, commands ...string) (string, error)
	Restart(ctx context.Context, service string) error
}

// Config holds the settings shared by every dependent service.
type Config struct {
	// KeycloakURL is the provider's address on the internal network.
	KeycloakURL       string
	Realm             string
	ReadyInterval     time.Duration
	ReadyMaxAttempts  int
	FileReadyAttempts int
	// SettleDelay is waited after a restarted service answers again.
	SettleDelay time.Duration
}

// Deps are the capabilities a dependent service works with.
type Deps struct {
	Identity identity.Provisioner
	Exec     Commands
	Waiter   orchestrator.Waiter
	Log      *zap.SugaredLogger
}

func (c Config) realmURL() string { return c.KeycloakURL + "/realms/" + c.Realm }

// outputLog forwards command output to the service log.
func outputLog(log *zap.SugaredLogger, service string) *containers.LineWriter {
	return containers.NewLineWriter(func(line string) {
		log.Debugw("exec output", "service", service, "line", line)
	})
}

// Defaults returns the fixed, ordered list of dependent services.
func Defaults(cfg Config, deps Deps, forgejoAdminPassword string) []orchestrator.DependentService {
	return []orchestrator.DependentService{
		NewMattermost(cfg, deps),
		NewForgejo(cfg, deps, forgejoAdminPassword),
	}
}
