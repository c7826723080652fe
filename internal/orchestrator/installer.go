// Package orchestrator runs the one-shot installation of the stack: identity
// realm and admin, dashboard client, dependent service SSO, service directory
// and the admin's first session.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"stackmgr/internal/identity"
	"stackmgr/internal/readiness"
	"stackmgr/pkg/services"
)

var ErrAlreadyInstalled = errors.New("system is already installed")

// ErrInstallInProgress is returned while another run holds the install claim.
var ErrInstallInProgress = fmt.Errorf("installation already in progress: %w", ErrAlreadyInstalled)

// Request is the input of one installation run.
type Request struct {
	Email    string
	Password string
	Domain   string
}

// Result is the terminal value of a successful run.
type Result struct {
	Status string            `json:"status"`
	Auth   *identity.Session `json:"auth"`
	Steps  []Step            `json:"-"`
}

// Sink receives human-readable progress lines.
type Sink interface {
	Log(line string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(line string) error

func (f SinkFunc) Log(line string) error { return f(line) }

// Env is what a dependent service gets to configure itself.
type Env struct {
	Domain     string
	AdminEmail string
	Log        func(line string)
}

// DependentService is an application whose SSO is configured during a run.
type DependentService interface {
	Name() string
	Provision(ctx context.Context, env Env) error
}

// SessionIssuer logs the admin in through the dashboard client.
type SessionIssuer interface {
	PasswordSession(ctx context.Context, username, password string) (*identity.Session, error)
}

// Waiter blocks until a probe succeeds or its attempts run out.
type Waiter interface {
	WaitFor(ctx context.Context, p readiness.Probe, interval time.Duration, maxAttempts int) (bool, error)
}

type Options struct {
	Identity          identity.Provisioner
	Sessions          SessionIssuer
	Waiter            Waiter
	Store             services.Store
	Claimer           services.Claimer
	Catalog           services.Catalog
	Services          []DependentService
	KeycloakURL       string
	RealmName         string
	DashboardClientID string
	ReadyInterval     time.Duration
	ReadyMaxAttempts  int
	// StrictAdminSession fails the run when no admin session can be issued.
	StrictAdminSession bool
	Log                *zap.SugaredLogger
}

// Installer drives the provisioning pipeline. Runs are strictly sequential.
type Installer struct {
	opt         Options
	transitions []transition
	newSecret   func() (string, error)
}

func New(opt Options) *Installer {
	if opt.DashboardClientID == "" {
		opt.DashboardClientID = "manager-client"
	}
	if opt.ReadyInterval <= 0 {
		opt.ReadyInterval = 2 * time.Second
	}
	if opt.ReadyMaxAttempts <= 0 {
		opt.ReadyMaxAttempts = 60
	}
	if opt.Log == nil {
		opt.Log = zap.NewNop().Sugar()
	}
	in := &Installer{opt: opt, newSecret: identity.GenerateSecret}
	in.transitions = in.table()
	return in
}

// Run executes the pipeline, reporting progress to sink. A returned error is
// fatal and its message is meant for the caller verbatim.
func (in *Installer) Run(ctx context.Context, req Request, sink Sink) (Result, error) {
	r := &run{req: req, sink: sink, log: in.opt.Log.With("admin", req.Email)}
	start := time.Now()
	defer func() {
		if r.claimed {
			if err := in.opt.Claimer.Release(context.WithoutCancel(ctx)); err != nil {
				r.log.Warnw("release install claim", "err", err)
			}
		}
	}()

	ctx, span := otel.Tracer("stackmgr/orchestrator").Start(ctx, "installation",
		trace.WithAttributes(attribute.String("domain", req.Domain)))
	defer span.End()

	state := StateCheckNotInstalled
	for state != StateDone {
		t, ok := in.lookup(state)
		if !ok {
			return Result{}, fmt.Errorf("no transition from state %s", state)
		}
		if err := in.step(ctx, r, t); err != nil {
			runsTotal.WithLabelValues("error").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.log.Errorw("installation failed", "state", state, "err", err, "elapsed", time.Since(start))
			return Result{Status: "error", Steps: r.steps}, err
		}
		state = t.next
	}
	runsTotal.WithLabelValues("success").Inc()
	r.log.Infow("installation complete", "elapsed", time.Since(start), "session", r.session != nil)
	return Result{Status: "success", Auth: r.session, Steps: r.steps}, nil
}

func (in *Installer) lookup(s State) (transition, bool) {
	for _, t := range in.transitions {
		if t.state == s {
			return t, true
		}
	}
	return transition{}, false
}

func (in *Installer) step(ctx context.Context, r *run, t transition) error {
	ctx, span := otel.Tracer("stackmgr/orchestrator").Start(ctx, string(t.state))
	defer span.End()
	r.span = span
	began := time.Now()
	r.current = Step{Name: string(t.state), Outcome: OutcomeOK}

	err := t.run(ctx, r)

	stepDuration.WithLabelValues(string(t.state)).Observe(time.Since(began).Seconds())
	if err != nil {
		r.current.Outcome = OutcomeFailedFatal
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("outcome", string(r.current.Outcome)))
	stepsTotal.WithLabelValues(string(t.state), string(r.current.Outcome)).Inc()
	r.steps = append(r.steps, r.current)
	if err != nil {
		return &StepError{Step: t.state, Class: t.class, Err: err}
	}
	return nil
}

// StepError carries the failed state and its failure class. Its message is
// the underlying error's, which is what the caller is shown.
type StepError struct {
	Step  State
	Class Class
	Err   error
}

func (e *StepError) Error() string { return e.Err.Error() }
func (e *StepError) Unwrap() error { return e.Err }

type run struct {
	req     Request
	sink    Sink
	log     *zap.SugaredLogger
	claimed bool
	session *identity.Session
	steps   []Step
	current Step
	span    trace.Span
}

// say emits a progress line to the caller and to the service log.
func (r *run) say(line string) {
	r.current.Logs = append(r.current.Logs, line)
	r.log.Infow("installer", "msg", line)
	if r.span != nil {
		r.span.AddEvent("progress", trace.WithAttributes(attribute.String("line", line)))
	}
	if r.sink == nil {
		return
	}
	if err := r.sink.Log(line); err != nil {
		r.log.Debugw("progress sink", "err", err)
	}
}
