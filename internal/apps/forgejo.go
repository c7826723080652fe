package apps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stackmgr/internal/containers"
	"stackmgr/internal/identity"
	"stackmgr/internal/orchestrator"
	"stackmgr/internal/readiness"
)

const (
	forgejoService   = "forgejo"
	forgejoDBService = "forgejo-db"
	forgejoClientID  = "forgejo-client"
	forgejoUser      = "1000"
	forgejoAuthName  = "keycloak"
	forgejoAdminName = "gitadmin"
)

// Forgejo writes app.ini, registers the realm as an OpenID Connect login
// source and links the local admin account to the realm admin.
type Forgejo struct {
	cfg           Config
	deps          Deps
	adminPassword string
	newSecret     func() (string, error)
	sleep         func(time.Duration)
}

func NewForgejo(cfg Config, deps Deps, adminPassword string) *Forgejo {
	return &Forgejo{
		cfg:           cfg,
		deps:          deps,
		adminPassword: adminPassword,
		newSecret:     identity.GenerateSecret,
		sleep:         time.Sleep,
	}
}

func (f *Forgejo) Name() string { return "Forgejo" }

func (f *Forgejo) Provision(ctx context.Context, env orchestrator.Env) error {
	log := f.deps.Log.With("service", forgejoService)
	env.Log("🛠️ Configuring Forgejo (Git)...")

	candidate, err := f.newSecret()
	if err != nil {
		return err
	}
	client, err := f.deps.Identity.EnsureClient(ctx, forgejoClientID, candidate, []string{
		fmt.Sprintf("http://git.%s/user/oauth2/%s/callback", env.Domain, forgejoAuthName),
	})
	if err != nil {
		return err
	}
	realmUserID, err := f.deps.Identity.LookupUserID(ctx, env.AdminEmail)
	if err != nil {
		log.Warnw("admin not found in realm, account linking will be skipped", "err", err)
	}
	f.deps.Identity.AttachProtocolMappers(ctx, client.ID, forgejoMappers)

	probe := readiness.HTTPProbe{URL: "http://forgejo:3000/"}
	if _, err := f.deps.Waiter.WaitFor(ctx, probe, f.cfg.ReadyInterval, f.cfg.ReadyMaxAttempts); err != nil {
		return err
	}

	out := outputLog(log, forgejoService)
	defer out.Flush()

	env.Log("⚙️ Injecting Forgejo configuration...")
	ini, err := f.appINI(env.Domain)
	if err != nil {
		return err
	}
	if code, err := f.deps.Exec.Stream(ctx, forgejoService, forgejoUser, ini, out); err != nil || code != 0 {
		log.Warnw("config injection", "code", code, "err", err)
	}

	env.Log("🔄 Restarting Forgejo to apply config...")
	if err := f.deps.Exec.Restart(ctx, forgejoService); err != nil {
		return fmt.Errorf("restart forgejo: %w", err)
	}
	if _, err := f.deps.Waiter.WaitFor(ctx, probe, f.cfg.ReadyInterval, f.cfg.ReadyMaxAttempts); err != nil {
		return err
	}
	f.sleep(f.cfg.SettleDelay)

	env.Log("🔑 Configuring SSO Provider...")
	if code, err := f.deps.Exec.Stream(ctx, forgejoService, forgejoUser, []string{f.addOAuth(client.Secret)}, out); err != nil || code != 0 {
		// an existing login source with the same name fails here on reruns
		log.Infow("forgejo sso configuration skipped", "code", code, "err", err)
	}

	env.Log("👤 Creating Forgejo Admin...")
	create := fmt.Sprintf("forgejo admin user create --admin --username %s --password %s --email %s || true",
		forgejoAdminName, containers.Quote(f.adminPassword), containers.Quote(env.AdminEmail))
	if code, err := f.deps.Exec.Stream(ctx, forgejoService, forgejoUser, []string{create}, out); err != nil || code != 0 {
		log.Infow("forgejo admin creation skipped", "code", code, "err", err)
	}

	env.Log("🔗 Linking Accounts...")
	if realmUserID == "" {
		env.Log("⚠️ Realm admin not found. Link skipped.")
		return nil
	}
	if err := f.link(ctx, realmUserID, env.AdminEmail, out, log); err != nil {
		env.Log("⚠️ " + err.Error())
		return nil
	}
	env.Log("✅ Accounts Linked Successfully!")
	return nil
}

func (f *Forgejo) appINI(domain string) ([]string, error) {
	key, err := f.newSecret()
	if err != nil {
		return nil, err
	}
	ini := strings.Join([]string{
		"[server]",
		"DOMAIN = git." + domain,
		"ROOT_URL = http://git." + domain + "/",
		"HTTP_PORT = 3000",
		"",
		"[database]",
		"DB_TYPE = postgres",
		"HOST = forgejo-db:5432",
		"NAME = forgejo",
		"USER = forgejo",
		"PASSWD = ${FORGEJO__database__PASSWD}",
		"",
		"[service]",
		"DISABLE_REGISTRATION = false",
		"ALLOW_ONLY_EXTERNAL_REGISTRATION = true",
		"SHOW_REGISTRATION_BUTTON = false",
		"AUTO_LINK_NEW_USER = true",
		"",
		"[security]",
		"INSTALL_LOCK = true",
		"SECRET_KEY = " + key,
		"",
		"[openid]",
		"ENABLE_OPENID_SIGNIN = true",
		"ENABLE_OPENID_SIGNUP = true",
	}, "\n")
	// double quotes so the database password is expanded from the container env
	return []string{
		"mkdir -p /data/gitea/conf",
		fmt.Sprintf("echo \"%s\" > /data/gitea/conf/app.ini", ini),
	}, nil
}

func (f *Forgejo) addOAuth(secret string) string {
	discovery := f.cfg.realmURL() + "/.well-known/openid-configuration"
	return strings.Join([]string{
		"forgejo admin auth add-oauth",
		"--name " + forgejoAuthName,
		"--provider openidConnect",
		"--key " + containers.Quote(forgejoClientID),
		"--secret " + containers.Quote(secret),
		"--auto-discover-url " + containers.Quote(discovery),
	}, " ")
}

var errLinkIDs = errors.New("could not find forgejo ids, link skipped")

// link maps the Forgejo admin to the realm user by writing the external login
// row directly. Forgejo's CLI has no structured lookup for either id, so both
// are scraped from its listings.
func (f *Forgejo) link(ctx context.Context, realmUserID, email string, out *containers.LineWriter, log *zap.SugaredLogger) error {
	auths, err := f.deps.Exec.Capture(ctx, forgejoService, forgejoUser, "forgejo admin auth list")
	if err != nil {
		return fmt.Errorf("link failed: %w", err)
	}
	users, err := f.deps.Exec.Capture(ctx, forgejoService, forgejoUser, "forgejo admin user list --admin")
	if err != nil {
		return fmt.Errorf("link failed: %w", err)
	}
	authID, ok := containers.ParseListingID(auths, forgejoAuthName)
	if !ok {
		return errLinkIDs
	}
	userID, ok := containers.ParseListingID(users, forgejoAdminName)
	if !ok {
		return errLinkIDs
	}
	log.Infow("linking forgejo account", "user_id", userID, "auth_id", authID)

	sql := fmt.Sprintf("INSERT INTO external_login_user (external_id, user_id, login_source_id, provider, email) "+
		"VALUES (%s, %s, %s, 'openidConnect', %s) ON CONFLICT (external_id, login_source_id) DO NOTHING;",
		sqlString(realmUserID), userID, authID, sqlString(email))
	psql := "psql -U forgejo -d forgejo -c " + containers.Quote(sql)
	code, err := f.deps.Exec.Stream(ctx, forgejoDBService, "", []string{psql}, out)
	if err != nil {
		return fmt.Errorf("link failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("link failed: psql exited with code %d", code)
	}
	return nil
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
