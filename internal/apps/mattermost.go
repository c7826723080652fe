package apps

import (
	"context"
	"fmt"

	"stackmgr/internal/containers"
	"stackmgr/internal/identity"
	"stackmgr/internal/orchestrator"
	"stackmgr/internal/readiness"
)

const (
	mattermostService  = "mattermost"
	mattermostClientID = "mattermost-client"
	mattermostSocket   = "/mattermost/mattermost_local.socket"
	mmctl              = "mmctl --local"
)

// Mattermost enables GitLab-style SSO against the realm through mmctl's
// local-mode socket.
type Mattermost struct {
	cfg       Config
	deps      Deps
	newSecret func() (string, error)
}

func NewMattermost(cfg Config, deps Deps) *Mattermost {
	return &Mattermost{cfg: cfg, deps: deps, newSecret: identity.GenerateSecret}
}

func (m *Mattermost) Name() string { return "Mattermost" }

func (m *Mattermost) Provision(ctx context.Context, env orchestrator.Env) error {
	log := m.deps.Log.With("service", mattermostService)
	env.Log("🛠️ Configuring Mattermost (Chat)...")

	candidate, err := m.newSecret()
	if err != nil {
		return err
	}
	client, err := m.deps.Identity.EnsureClient(ctx, mattermostClientID, candidate, []string{
		fmt.Sprintf("http://chat.%s/*", env.Domain),
	})
	if err != nil {
		return err
	}
	n := m.deps.Identity.AttachProtocolMappers(ctx, client.ID, gitLabMappers)
	log.Debugw("mappers attached", "count", n, "of", len(gitLabMappers))

	probe := readiness.FileProbe{Service: mattermostService, Path: mattermostSocket, Socket: true, Exec: m.deps.Exec}
	if _, err := m.deps.Waiter.WaitFor(ctx, probe, m.cfg.ReadyInterval, m.cfg.FileReadyAttempts); err != nil {
		return err
	}

	out := outputLog(log, mattermostService)
	defer out.Flush()
	link := fmt.Sprintf("ln -sf %s /var/tmp/mattermost_local.socket", mattermostSocket)
	if code, err := m.deps.Exec.Stream(ctx, mattermostService, "", []string{link}, out); err != nil {
		return err
	} else if code != 0 {
		log.Warnw("socket symlink not created", "code", code)
	}

	// The secret mmctl writes is the one stored in the realm, so a rerun over
	// an existing client keeps both sides in agreement.
	code, err := m.deps.Exec.Stream(ctx, mattermostService, "", m.settings(env.Domain, client.Secret), out)
	if err != nil || code != 0 {
		log.Warnw("mattermost config partially applied, settings may be locked by env vars", "code", code, "err", err)
	}

	env.Log("🔄 Reloading Mattermost...")
	code, err = m.deps.Exec.Stream(ctx, mattermostService, "", []string{mmctl + " config reload"}, out)
	if err != nil {
		return err
	}
	if code != 0 {
		log.Warnw("mattermost config reload exited non-zero", "code", code)
	}
	return nil
}

func (m *Mattermost) settings(domain, secret string) []string {
	oidc := "/protocol/openid-connect/"
	set := func(key, value string) string {
		return fmt.Sprintf("%s config set GitLabSettings.%s %s", mmctl, key, containers.Quote(value))
	}
	return []string{
		set("Enable", "true"),
		set("Id", mattermostClientID),
		set("Secret", secret),
		set("AuthEndpoint", fmt.Sprintf("http://auth.%s/realms/%s%sauth", domain, m.cfg.Realm, oidc)),
		set("TokenEndpoint", m.cfg.realmURL()+oidc+"token"),
		set("UserApiEndpoint", m.cfg.realmURL()+oidc+"userinfo"),
	}
}
