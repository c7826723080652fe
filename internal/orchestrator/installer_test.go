package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackmgr/internal/identity"
	"stackmgr/internal/readiness"
	"stackmgr/pkg/logger"
	"stackmgr/pkg/services"
)

type fakeProvisioner struct {
	realmErr  error
	clientErr error
	realms    []string
	admins    []string
	clients   map[string][]string
}

func (f *fakeProvisioner) EnsureRealm(_ context.Context, name string) error {
	if f.realmErr != nil {
		return f.realmErr
	}
	f.realms = append(f.realms, name)
	return nil
}

func (f *fakeProvisioner) EnsureAdminUser(_ context.Context, email, _ string) error {
	f.admins = append(f.admins, email)
	return nil
}

func (f *fakeProvisioner) EnsureClient(_ context.Context, clientID, secret string, uris []string) (identity.Client, error) {
	if f.clientErr != nil {
		return identity.Client{}, f.clientErr
	}
	if f.clients == nil {
		f.clients = map[string][]string{}
	}
	f.clients[clientID] = uris
	return identity.Client{ID: "uuid-" + clientID, ClientID: clientID, Secret: secret, RedirectURIs: uris, Created: true}, nil
}

func (f *fakeProvisioner) AttachProtocolMappers(context.Context, string, []identity.Mapper) int {
	return 0
}

func (f *fakeProvisioner) LookupUserID(context.Context, string) (string, error) {
	return "", identity.ErrUserNotFound
}

type fakeWaiter struct {
	ok      bool
	targets []string
}

func (f *fakeWaiter) WaitFor(_ context.Context, p readiness.Probe, _ time.Duration, attempts int) (bool, error) {
	f.targets = append(f.targets, p.Target())
	if !f.ok {
		return false, &readiness.TimeoutError{Target: p.Target(), Attempts: attempts}
	}
	return true, nil
}

type fakeSessions struct {
	err error
}

func (f fakeSessions) PasswordSession(context.Context, string, string) (*identity.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &identity.Session{AccessToken: "at", RefreshToken: "rt"}, nil
}

type fakeService struct {
	name  string
	err   error
	calls int
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Provision(_ context.Context, env Env) error {
	f.calls++
	env.Log("configuring " + f.name)
	return f.err
}

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) Log(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, line)
	return nil
}

func (l *lines) contains(sub string) bool {
	for _, s := range l.all {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

type harness struct {
	prov    *fakeProvisioner
	waiter  *fakeWaiter
	store   services.Store
	claimer services.Claimer
	chat    *fakeService
	git     *fakeService
	opt     Options
}

func newHarness() *harness {
	h := &harness{
		prov:    &fakeProvisioner{},
		waiter:  &fakeWaiter{ok: true},
		store:   services.NewMemoryStore(),
		claimer: services.NewMemoryClaimer(),
		chat:    &fakeService{name: "Mattermost"},
		git:     &fakeService{name: "Forgejo"},
	}
	h.opt = Options{
		Identity:    h.prov,
		Sessions:    fakeSessions{},
		Waiter:      h.waiter,
		Store:       h.store,
		Claimer:     h.claimer,
		Catalog:     services.DefaultCatalog(),
		Services:    []DependentService{h.chat, h.git},
		KeycloakURL: "http://keycloak:8080",
		RealmName:   "startup-stack",
		Log:         logger.Nop(),
	}
	return h
}

var req = Request{Email: "a@b.com", Password: "Secret123", Domain: "lvh.me"}

func TestRun_Success(t *testing.T) {
	t.Parallel()
	h := newHarness()
	out := &lines{}

	res, err := New(h.opt).Run(context.Background(), req, out)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	require.NotNil(t, res.Auth)
	assert.Equal(t, "at", res.Auth.AccessToken)

	assert.Equal(t, []string{"http://keycloak:8080/realms/master"}, h.waiter.targets)
	assert.Equal(t, []string{"startup-stack"}, h.prov.realms)
	assert.Equal(t, []string{"http://dashboard.lvh.me/*", "http://localhost:5173/*"}, h.prov.clients["manager-client"])

	rows, err := h.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "http://git.lvh.me", rows[2].URL)

	assert.Equal(t, "🔍 Checking system status...", out.all[0])
	assert.Equal(t, "✅ Setup Complete", out.all[len(out.all)-1])
	assert.True(t, out.contains("✅ Mattermost Configured"))
	assert.True(t, out.contains("configuring Forgejo"))

	require.Len(t, res.Steps, 7)
	for _, s := range res.Steps {
		assert.Equal(t, OutcomeOK, s.Outcome, s.Name)
	}
}

func TestNew_WithoutLogger(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.opt.Log = nil

	res, err := New(h.opt).Run(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
}

func TestRun_AlreadyInstalled(t *testing.T) {
	t.Parallel()
	h := newHarness()
	in := New(h.opt)

	_, err := in.Run(context.Background(), req, &lines{})
	require.NoError(t, err)

	out := &lines{}
	_, err = in.Run(context.Background(), req, out)
	require.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.Equal(t, "system is already installed", err.Error())
	assert.Equal(t, 1, h.chat.calls, "second run must not touch dependent services")
	assert.Len(t, out.all, 1)
}

func TestRun_ClaimHeldElsewhere(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ok, err := h.claimer.Claim(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = New(h.opt).Run(context.Background(), req, &lines{})
	require.ErrorIs(t, err, ErrInstallInProgress)
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.Empty(t, h.waiter.targets)
}

func TestRun_FatalStepsPersistNothing(t *testing.T) {
	t.Parallel()
	cases := map[string]struct {
		mutate func(h *harness)
		state  State
		msg    string
	}{
		"identity provider unreachable": {
			mutate: func(h *harness) { h.waiter.ok = false },
			state:  StateWaitIdentityProvider,
			msg:    "timeout waiting for http://keycloak:8080/realms/master",
		},
		"realm provisioning": {
			mutate: func(h *harness) { h.prov.realmErr = errors.New("403 Forbidden") },
			state:  StateProvisionRealmAndAdmin,
			msg:    "403 Forbidden",
		},
		"dashboard client": {
			mutate: func(h *harness) { h.prov.clientErr = errors.New("client boom") },
			state:  StateRegisterDashboardClient,
			msg:    "client boom",
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness()
			tc.mutate(h)
			in := New(h.opt)

			res, err := in.Run(context.Background(), req, &lines{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			var stepErr *StepError
			require.ErrorAs(t, err, &stepErr)
			assert.Equal(t, tc.state, stepErr.Step)
			assert.Equal(t, ClassFatal, stepErr.Class)
			assert.Equal(t, OutcomeFailedFatal, res.Steps[len(res.Steps)-1].Outcome)

			installed, err := h.store.IsInstalled(context.Background())
			require.NoError(t, err)
			assert.False(t, installed)
			assert.Zero(t, h.chat.calls)

			// the claim was released so a retry can proceed
			ok, err := h.claimer.Claim(context.Background())
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRun_PartialFailureContinues(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.chat.err = errors.New("socket never appeared")
	out := &lines{}

	res, err := New(h.opt).Run(context.Background(), req, out)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.True(t, out.contains("❌ Mattermost Setup Failed: socket never appeared"))
	assert.True(t, out.contains("✅ Forgejo Configured"))
	assert.Equal(t, 1, h.git.calls)

	installed, err := h.store.IsInstalled(context.Background())
	require.NoError(t, err)
	assert.True(t, installed)

	var configure Step
	for _, s := range res.Steps {
		if s.Name == string(StateConfigureServices) {
			configure = s
		}
	}
	assert.Equal(t, OutcomeFailedRecoverable, configure.Outcome)
}

func TestRun_AdminSessionFailure(t *testing.T) {
	t.Parallel()

	t.Run("lenient", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		h.opt.Sessions = fakeSessions{err: errors.New("invalid_grant")}
		out := &lines{}
		res, err := New(h.opt).Run(context.Background(), req, out)
		require.NoError(t, err)
		assert.Equal(t, "success", res.Status)
		assert.Nil(t, res.Auth)
		assert.Contains(t, out.all, "⚠️ Admin session could not be issued, sign in from the dashboard")
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		h := newHarness()
		h.opt.Sessions = fakeSessions{err: errors.New("invalid_grant")}
		h.opt.StrictAdminSession = true
		_, err := New(h.opt).Run(context.Background(), req, &lines{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid_grant")

		// descriptors were already written, so the system counts as installed
		installed, err := h.store.IsInstalled(context.Background())
		require.NoError(t, err)
		assert.True(t, installed)
	})
}

func TestRun_ConcurrentRequestsSingleWinner(t *testing.T) {
	t.Parallel()
	h := newHarness()
	in := New(h.opt)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = in.Run(context.Background(), req, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyInstalled)
	}
	assert.Equal(t, 1, succeeded)
}
