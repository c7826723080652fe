package orchestrator

import (
	"context"
	"fmt"

	"stackmgr/internal/readiness"
)

// State names a stage of the installation pipeline.
type State string

const (
	StateCheckNotInstalled         State = "check-not-installed"
	StateWaitIdentityProvider      State = "wait-identity-provider"
	StateProvisionRealmAndAdmin    State = "provision-realm-and-admin"
	StateRegisterDashboardClient   State = "register-dashboard-client"
	StateConfigureServices         State = "configure-services"
	StatePersistServiceDescriptors State = "persist-service-descriptors"
	StateIssueAdminSession         State = "issue-admin-session"
	StateDone                      State = "done"
)

// Class says what a failure in a state does to the run.
type Class string

const (
	// ClassFatal aborts the run.
	ClassFatal Class = "fatal"
	// ClassRecoverable is logged and the run moves on.
	ClassRecoverable Class = "recoverable"
	// ClassBestEffort is swallowed entirely.
	ClassBestEffort Class = "best-effort"
)

type Outcome string

const (
	OutcomeOK                Outcome = "ok"
	OutcomeFailedFatal       Outcome = "failed-fatal"
	OutcomeFailedRecoverable Outcome = "failed-recoverable"
)

// Step is the in-memory record of one state's execution.
type Step struct {
	Name    string
	Outcome Outcome
	Logs    []string
}

type transition struct {
	state State
	class Class // class of an error returned by run
	next  State
	run   func(ctx context.Context, r *run) error
}

func (in *Installer) table() []transition {
	return []transition{
		{StateCheckNotInstalled, ClassFatal, StateWaitIdentityProvider, in.checkNotInstalled},
		{StateWaitIdentityProvider, ClassFatal, StateProvisionRealmAndAdmin, in.waitIdentityProvider},
		{StateProvisionRealmAndAdmin, ClassFatal, StateRegisterDashboardClient, in.provisionRealmAndAdmin},
		{StateRegisterDashboardClient, ClassFatal, StateConfigureServices, in.registerDashboardClient},
		{StateConfigureServices, ClassRecoverable, StatePersistServiceDescriptors, in.configureServices},
		{StatePersistServiceDescriptors, ClassFatal, StateIssueAdminSession, in.persistDescriptors},
		{StateIssueAdminSession, ClassFatal, StateDone, in.issueAdminSession},
	}
}

func (in *Installer) checkNotInstalled(ctx context.Context, r *run) error {
	r.say("🔍 Checking system status...")
	if err := in.opt.Store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("prepare service directory: %w", err)
	}
	ok, err := in.opt.Claimer.Claim(ctx)
	if err != nil {
		return fmt.Errorf("claim installation: %w", err)
	}
	if !ok {
		return ErrInstallInProgress
	}
	r.claimed = true
	installed, err := in.opt.Store.IsInstalled(ctx)
	if err != nil {
		return fmt.Errorf("check installed: %w", err)
	}
	if installed {
		return ErrAlreadyInstalled
	}
	r.say("🚀 Starting Setup...")
	return nil
}

func (in *Installer) waitIdentityProvider(ctx context.Context, r *run) error {
	r.say("⏳ Waiting for Keycloak...")
	probe := readiness.HTTPProbe{URL: in.opt.KeycloakURL + "/realms/master"}
	if _, err := in.opt.Waiter.WaitFor(ctx, probe, in.opt.ReadyInterval, in.opt.ReadyMaxAttempts); err != nil {
		return err
	}
	return nil
}

func (in *Installer) provisionRealmAndAdmin(ctx context.Context, r *run) error {
	r.say("🔐 Configuring Identity Provider...")
	if err := in.opt.Identity.EnsureRealm(ctx, in.opt.RealmName); err != nil {
		return err
	}
	return in.opt.Identity.EnsureAdminUser(ctx, r.req.Email, r.req.Password)
}

func (in *Installer) registerDashboardClient(ctx context.Context, r *run) error {
	r.say("👉 Registering Dashboard Client...")
	secret, err := in.newSecret()
	if err != nil {
		return fmt.Errorf("generate client secret: %w", err)
	}
	_, err = in.opt.Identity.EnsureClient(ctx, in.opt.DashboardClientID, secret, []string{
		fmt.Sprintf("http://dashboard.%s/*", r.req.Domain),
		"http://localhost:5173/*",
	})
	return err
}

// configureServices never fails the run; each service's error is reported as
// a progress line.
func (in *Installer) configureServices(ctx context.Context, r *run) error {
	env := Env{Domain: r.req.Domain, AdminEmail: r.req.Email, Log: r.say}
	for _, svc := range in.opt.Services {
		if err := svc.Provision(ctx, env); err != nil {
			r.say(fmt.Sprintf("❌ %s Setup Failed: %s", svc.Name(), err))
			r.log.Warnw("dependent service failed", "service", svc.Name(), "err", err)
			r.current.Outcome = OutcomeFailedRecoverable
			continue
		}
		r.say(fmt.Sprintf("✅ %s Configured", svc.Name()))
	}
	return nil
}

func (in *Installer) persistDescriptors(ctx context.Context, r *run) error {
	r.say("💾 Saving Service Configuration...")
	for _, d := range in.opt.Catalog.Descriptors(r.req.Domain) {
		if err := in.opt.Store.Upsert(ctx, d); err != nil {
			return fmt.Errorf("save service %s: %w", d.Slug, err)
		}
	}
	return nil
}

func (in *Installer) issueAdminSession(ctx context.Context, r *run) error {
	r.say("🎟️ Generating Admin Session...")
	session, err := in.opt.Sessions.PasswordSession(ctx, r.req.Email, r.req.Password)
	if err != nil {
		if in.opt.StrictAdminSession {
			return fmt.Errorf("issue admin session: %w", err)
		}
		r.log.Warnw("admin session not issued, returning success without auth", "err", err)
		r.say("⚠️ Admin session could not be issued, sign in from the dashboard")
		r.current.Outcome = OutcomeFailedRecoverable
		session = nil
	}
	r.session = session
	r.say("✅ Setup Complete")
	return nil
}
