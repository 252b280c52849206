// ABOUTME: Static route table with nested descriptors and matched-ancestry resolution
// ABOUTME: Resolve returns the full chain of matched segments so ancestors can carry auth meta

package route

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/2389/gatekeeper/internal/session"
)

// Symbolic route names the guard redirects to.
const (
	NameLogin          = "login"
	NameRegister       = "register"
	NameAdminDashboard = "admin-dashboard"
	NameUserDashboard  = "user-dashboard"
	NameProfile        = "profile"
)

// ErrUnknownRoute is returned by ByName for names not in the table.
var ErrUnknownRoute = errors.New("unknown route")

// Meta holds the access requirements of one route segment.
type Meta struct {
	RequiresAuth bool         `yaml:"requires_auth" toml:"requires_auth"`
	RequiresRole session.Role `yaml:"requires_role,omitempty" toml:"requires_role"`
}

// Descriptor declares a navigable path and its access requirements.
// Child paths are relative to their parent.
type Descriptor struct {
	Path     string       `yaml:"path" toml:"path"`
	Name     string       `yaml:"name,omitempty" toml:"name"`
	Redirect string       `yaml:"redirect,omitempty" toml:"redirect"` // static redirect to another path
	Meta     Meta         `yaml:"meta,omitempty" toml:"meta"`
	Children []Descriptor `yaml:"children,omitempty" toml:"children"`
}

// Match is a resolved path: the matched chain from root to leaf.
type Match struct {
	Path   string
	Chain  []*Descriptor
	Params map[string]string
}

// Leaf returns the most specific matched descriptor, or nil for an empty match.
func (m Match) Leaf() *Descriptor {
	if len(m.Chain) == 0 {
		return nil
	}
	return m.Chain[len(m.Chain)-1]
}

// Name returns the leaf's name.
func (m Match) Name() string {
	if leaf := m.Leaf(); leaf != nil {
		return leaf.Name
	}
	return ""
}

// RequiresAuth reports whether any segment of the chain requires authentication.
func (m Match) RequiresAuth() bool {
	for _, d := range m.Chain {
		if d.Meta.RequiresAuth {
			return true
		}
	}
	return false
}

// RequiredRole returns the role declared nearest the leaf, or "" if no segment
// declares one. A child's own role overrides its ancestors'.
func (m Match) RequiredRole() session.Role {
	for i := len(m.Chain) - 1; i >= 0; i-- {
		if r := m.Chain[i].Meta.RequiresRole; r != "" {
			return r
		}
	}
	return ""
}

// entry is a flattened descriptor with its absolute path and ancestry.
type entry struct {
	segments []string
	chain    []*Descriptor
	full     string
}

// Table is an immutable, validated route table.
type Table struct {
	roots   []Descriptor
	entries []entry
	byName  map[string]string
}

// NewTable validates descs and builds a table. Descriptors are copied so
// later changes to the arguments do not affect the table.
func NewTable(descs ...Descriptor) (*Table, error) {
	roots := cloneDescriptors(descs)
	if err := validateTable(roots); err != nil {
		return nil, err
	}

	t := &Table{roots: roots, byName: make(map[string]string)}
	for i := range t.roots {
		t.flatten(&t.roots[i], "", nil)
	}

	// Redirect targets must resolve once every path is known
	for _, e := range t.entries {
		leaf := e.chain[len(e.chain)-1]
		if leaf.Redirect == "" {
			continue
		}
		if _, ok := t.Resolve(leaf.Redirect); !ok {
			return nil, fmt.Errorf("route %q: redirect target %q does not resolve", e.full, leaf.Redirect)
		}
	}
	return t, nil
}

// MustTable is NewTable for statically declared tables.
func MustTable(descs ...Descriptor) *Table {
	t, err := NewTable(descs...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) flatten(d *Descriptor, parent string, ancestors []*Descriptor) {
	full := joinPath(parent, d.Path)
	chain := make([]*Descriptor, len(ancestors), len(ancestors)+1)
	copy(chain, ancestors)
	chain = append(chain, d)

	t.entries = append(t.entries, entry{segments: splitPath(full), chain: chain, full: full})
	if d.Name != "" {
		t.byName[d.Name] = full
	}
	for i := range d.Children {
		t.flatten(&d.Children[i], full, chain)
	}
}

// Resolve matches path against the table. Query strings, fragments and
// trailing slashes are ignored. Static segments win over parameters.
func (t *Table) Resolve(path string) (Match, bool) {
	clean := cleanPath(path)
	segs := splitPath(clean)

	best := -1
	bestScore := -1
	var bestParams map[string]string
	for i, e := range t.entries {
		params, score, ok := matchSegments(e.segments, segs)
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore, bestParams = i, score, params
		}
	}
	if best < 0 {
		return Match{Path: clean}, false
	}
	return Match{Path: clean, Chain: t.entries[best].chain, Params: bestParams}, true
}

// ByName returns the absolute path of a named route.
func (t *Table) ByName(name string) (string, error) {
	p, ok := t.byName[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownRoute, name)
	}
	return p, nil
}

// Routes returns every route with its absolute path, in declaration order.
func (t *Table) Routes() []Flat {
	out := make([]Flat, 0, len(t.entries))
	for _, e := range t.entries {
		m := Match{Path: e.full, Chain: e.chain}
		out = append(out, Flat{
			Path:         e.full,
			Name:         m.Name(),
			Redirect:     m.Leaf().Redirect,
			RequiresAuth: m.RequiresAuth(),
			RequiresRole: m.RequiredRole(),
		})
	}
	return out
}

// Flat is a route with its effective requirements, for listings.
type Flat struct {
	Path         string
	Name         string
	Redirect     string
	RequiresAuth bool
	RequiresRole session.Role
}

// matchSegments compares pattern segments against path segments. The score
// counts static matches so the most specific route wins.
func matchSegments(pattern, path []string) (map[string]string, int, bool) {
	if len(pattern) != len(path) {
		return nil, 0, false
	}
	var params map[string]string
	score := 0
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = path[i]
			continue
		}
		if p != path[i] {
			return nil, 0, false
		}
		score++
	}
	return params, score, true
}

func cleanPath(p string) string {
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func joinPath(parent, child string) string {
	if strings.HasPrefix(child, "/") || parent == "" {
		return cleanPath(child)
	}
	return cleanPath(strings.TrimRight(parent, "/") + "/" + child)
}

func cloneDescriptors(in []Descriptor) []Descriptor {
	if in == nil {
		return nil
	}
	out := make([]Descriptor, len(in))
	for i, d := range in {
		out[i] = d
		out[i].Children = cloneDescriptors(d.Children)
	}
	return out
}
