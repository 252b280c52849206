// ABOUTME: Navigation guard classifying each route transition as allow or redirect
// ABOUTME: Reads the session fresh on every call; never blocks, never errors, never writes

package guard

import (
	"log/slog"

	"github.com/2389/gatekeeper/internal/metrics"
	"github.com/2389/gatekeeper/internal/route"
	"github.com/2389/gatekeeper/internal/session"
)

// Action is what the navigation should do.
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Reason names the rule that produced a decision.
type Reason string

const (
	ReasonAllowed              Reason = "allowed"
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonRoleMismatch         Reason = "role_mismatch"
	ReasonAlreadyAuthenticated Reason = "already_authenticated"
)

// Decision is the outcome of evaluating one transition. Target is a symbolic
// route name and is empty when Action is Allow.
type Decision struct {
	Action Action
	Target string
	Reason Reason
}

func (d Decision) String() string {
	if d.Action == Allow {
		return "allow"
	}
	return "redirect to " + d.Target + " (" + string(d.Reason) + ")"
}

// Guard gates route transitions against the live session.
type Guard struct {
	store   session.Store
	homes   HomeRoutes
	login   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Guard.
type Option func(*Guard)

// WithHomes replaces the role-to-home table.
func WithHomes(h HomeRoutes) Option {
	return func(g *Guard) {
		g.homes = h
	}
}

// WithLoginRoute sets the name of the login route (default: "login").
func WithLoginRoute(name string) Option {
	return func(g *Guard) {
		g.login = name
	}
}

// WithLogger sets the logger used for debug tracing of decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

// WithMetrics counts decisions by action and reason.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// New creates a Guard reading from store.
func New(store session.Store, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		homes:  DefaultHomes(),
		login:  route.NameLogin,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "guard")
	return g
}

// Evaluate decides whether the transition from -> to may proceed. The first
// matching rule wins:
//
//  1. auth required anywhere in to's chain and no token: redirect to login
//  2. auth required, token present, leaf role set and different: redirect home
//  3. token present and to is the login route: redirect home
//  4. otherwise allow
//
// from is accepted for symmetry with router hooks and does not affect the outcome.
func (g *Guard) Evaluate(to, from route.Match) Decision {
	d := g.decide(to)
	g.metrics.ObserveDecision(d.Action.String(), string(d.Reason))
	g.logger.Debug("navigation evaluated",
		"to", to.Path,
		"from", from.Path,
		"decision", d.Action.String(),
		"target", d.Target,
		"reason", d.Reason,
	)
	return d
}

func (g *Guard) decide(to route.Match) Decision {
	sess := g.snapshot()
	requiresAuth := to.RequiresAuth()

	if requiresAuth && !sess.HasToken() {
		return Decision{Action: Redirect, Target: g.login, Reason: ReasonUnauthenticated}
	}

	if requiresAuth {
		if required := to.RequiredRole(); required != "" && sess.Role != required {
			return Decision{Action: Redirect, Target: g.homes.For(sess.Role), Reason: ReasonRoleMismatch}
		}
	}

	if sess.HasToken() && to.Name() == g.login {
		return Decision{Action: Redirect, Target: g.homes.For(sess.Role), Reason: ReasonAlreadyAuthenticated}
	}

	return Decision{Action: Allow, Reason: ReasonAllowed}
}

// snapshot takes token and role in one read. A nil store is the anonymous session.
func (g *Guard) snapshot() session.Session {
	if g.store == nil {
		return session.Session{}
	}
	return g.store.Session()
}
