// ABOUTME: Client-side navigator resolving paths, applying the guard and committing history
// ABOUTME: Follows static and guard redirects until a route is allowed or a loop is detected

package navigation

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/gatekeeper/internal/guard"
	"github.com/2389/gatekeeper/internal/route"
)

// MaxRedirects bounds the redirects one Push may follow.
const MaxRedirects = 10

// Navigation errors
var (
	ErrNoRoute       = errors.New("no route matches path")
	ErrRedirectLoop  = errors.New("redirect loop")
	ErrNoHistory     = errors.New("no previous entry in history")
	ErrUnknownTarget = errors.New("redirect target is not a known route")
)

// Hop is one redirect taken while resolving a Push.
type Hop struct {
	From string
	To   string
	// Static is true for a route's declared redirect and false for a guard redirect.
	Static   bool
	Decision guard.Decision
}

// Result is the outcome of a successful navigation.
type Result struct {
	Match route.Match
	Hops  []Hop
}

// Redirected reports whether the committed route differs from the requested one.
func (r Result) Redirected() bool {
	return len(r.Hops) > 0
}

// Navigator keeps the current route and history of one client.
type Navigator struct {
	table  *route.Table
	guard  *guard.Guard
	logger *slog.Logger

	mu      sync.Mutex
	history []route.Match
}

// Option configures a Navigator.
type Option func(*Navigator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Navigator) {
		n.logger = logger
	}
}

// New creates a Navigator over table, gating every transition with g.
func New(table *route.Table, g *guard.Guard, opts ...Option) *Navigator {
	n := &Navigator{
		table:  table,
		guard:  g,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With("component", "navigation")
	return n
}

// Push navigates to path and appends the final route to history. On error
// history is unchanged.
func (n *Navigator) Push(path string) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	res, err := n.resolve(path, n.currentLocked())
	if err != nil {
		return Result{}, err
	}
	n.history = append(n.history, res.Match)
	return res, nil
}

// Replace navigates to path and replaces the current history entry.
func (n *Navigator) Replace(path string) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	res, err := n.resolve(path, n.currentLocked())
	if err != nil {
		return Result{}, err
	}
	if len(n.history) == 0 {
		n.history = append(n.history, res.Match)
	} else {
		n.history[len(n.history)-1] = res.Match
	}
	return res, nil
}

// Back returns to the previous entry. The guard runs again, so an entry the
// session may no longer see is redirected like any other navigation.
func (n *Navigator) Back() (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.history) < 2 {
		return Result{}, ErrNoHistory
	}
	current := n.history[len(n.history)-1]
	previous := n.history[len(n.history)-2]

	res, err := n.resolve(previous.Path, current)
	if err != nil {
		return Result{}, err
	}
	n.history = n.history[:len(n.history)-1]
	n.history[len(n.history)-1] = res.Match
	return res, nil
}

// Current returns the committed route, if any.
func (n *Navigator) Current() (route.Match, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.history) == 0 {
		return route.Match{}, false
	}
	return n.history[len(n.history)-1], true
}

// History returns the committed paths, oldest first.
func (n *Navigator) History() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]string, len(n.history))
	for i, m := range n.history {
		out[i] = m.Path
	}
	return out
}

func (n *Navigator) currentLocked() route.Match {
	if len(n.history) == 0 {
		return route.Match{}
	}
	return n.history[len(n.history)-1]
}

// resolve walks redirects from path until the guard allows a route.
func (n *Navigator) resolve(path string, from route.Match) (Result, error) {
	var hops []Hop
	seen := make(map[string]bool)

	for {
		to, ok := n.table.Resolve(path)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrNoRoute, to.Path)
		}
		if seen[to.Path] {
			return Result{}, loopError(to.Path, hops)
		}
		seen[to.Path] = true

		if len(hops) >= MaxRedirects {
			return Result{}, loopError(to.Path, hops)
		}

		if leaf := to.Leaf(); leaf.Redirect != "" {
			hops = append(hops, Hop{From: to.Path, To: leaf.Redirect, Static: true})
			path = leaf.Redirect
			continue
		}

		d := n.guard.Evaluate(to, from)
		if d.Action == guard.Allow {
			n.logger.Debug("navigation committed", "path", to.Path, "hops", len(hops))
			return Result{Match: to, Hops: hops}, nil
		}

		target, err := n.table.ByName(d.Target)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %s (from %s)", ErrUnknownTarget, d.Target, to.Path)
		}
		n.logger.Debug("navigation redirected", "from", to.Path, "to", target, "reason", d.Reason)
		hops = append(hops, Hop{From: to.Path, To: target, Decision: d})
		path = target
	}
}

func loopError(path string, hops []Hop) error {
	trail := make([]string, 0, len(hops)+1)
	for _, h := range hops {
		trail = append(trail, h.From)
	}
	trail = append(trail, path)
	return fmt.Errorf("%w: %v", ErrRedirectLoop, trail)
}
