// ABOUTME: Tests for route table construction, validation and resolution
// ABOUTME: Covers nested ancestry, params, normalization and the parking table

package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gatekeeper/internal/session"
)

func TestDefault_ResolvesEveryNamedRoute(t *testing.T) {
	table := Default()

	tests := []struct {
		path     string
		name     string
		auth     bool
		role     session.Role
		redirect string
	}{
		{path: "/", redirect: "/login"},
		{path: "/login", name: NameLogin},
		{path: "/register", name: NameRegister},
		{path: "/admin-dashboard", name: NameAdminDashboard, auth: true, role: session.RoleAdmin},
		{path: "/profile", name: NameProfile, auth: true},
		{path: "/dashboard", name: NameUserDashboard, auth: true, role: session.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			m, ok := table.Resolve(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.name, m.Name())
			assert.Equal(t, tt.auth, m.RequiresAuth())
			assert.Equal(t, tt.role, m.RequiredRole())
			assert.Equal(t, tt.redirect, m.Leaf().Redirect)
		})
	}
}

func TestResolve_Normalizes(t *testing.T) {
	table := Default()

	for _, p := range []string{"/dashboard/", "dashboard", "/dashboard?tab=history", "/dashboard#top"} {
		m, ok := table.Resolve(p)
		require.True(t, ok, p)
		assert.Equal(t, "/dashboard", m.Path, p)
		assert.Equal(t, NameUserDashboard, m.Name(), p)
	}
}

func TestResolve_Unknown(t *testing.T) {
	m, ok := Default().Resolve("/nowhere")
	assert.False(t, ok)
	assert.Nil(t, m.Leaf())
	assert.Equal(t, "", m.Name())
	assert.False(t, m.RequiresAuth())
}

func TestResolve_AncestorRequiresAuth(t *testing.T) {
	table, err := NewTable(
		Descriptor{Path: "/login", Name: NameLogin},
		Descriptor{
			Path: "/admin",
			Meta: Meta{RequiresAuth: true},
			Children: []Descriptor{
				{Path: "lots", Name: "admin-lots", Meta: Meta{RequiresRole: session.RoleAdmin}},
				{Path: "lots/:id", Name: "admin-lot"},
			},
		},
	)
	require.NoError(t, err)

	m, ok := table.Resolve("/admin/lots")
	require.True(t, ok)
	require.Len(t, m.Chain, 2)
	assert.Equal(t, "/admin", m.Chain[0].Path)
	assert.True(t, m.RequiresAuth(), "auth is inherited from the ancestor segment")
	assert.False(t, m.Leaf().Meta.RequiresAuth)
	assert.Equal(t, session.RoleAdmin, m.RequiredRole())

	m, ok = table.Resolve("/admin/lots/42")
	require.True(t, ok)
	assert.Equal(t, "admin-lot", m.Name())
	assert.Equal(t, "42", m.Params["id"])
	assert.True(t, m.RequiresAuth())

	p, err := table.ByName("admin-lot")
	require.NoError(t, err)
	assert.Equal(t, "/admin/lots/:id", p)
}

func TestResolve_RoleNearestLeafWins(t *testing.T) {
	table, err := NewTable(
		Descriptor{
			Path: "/admin",
			Meta: Meta{RequiresAuth: true, RequiresRole: session.RoleAdmin},
			Children: []Descriptor{
				{Path: "lots", Name: "admin-lots"},
				{Path: "inbox", Name: "admin-inbox", Meta: Meta{RequiresRole: session.RoleUser}},
			},
		},
	)
	require.NoError(t, err)

	m, ok := table.Resolve("/admin/lots")
	require.True(t, ok)
	assert.Equal(t, session.RoleAdmin, m.RequiredRole(), "role is inherited from the parent")

	m, ok = table.Resolve("/admin/inbox")
	require.True(t, ok)
	assert.Equal(t, session.RoleUser, m.RequiredRole(), "a child's own role overrides the parent")

	for _, f := range table.Routes() {
		if f.Name == "admin-lots" {
			assert.Equal(t, session.RoleAdmin, f.RequiresRole)
		}
	}

	assert.Equal(t, session.Role(""), Match{}.RequiredRole())
}

func TestResolve_StaticBeatsParam(t *testing.T) {
	table, err := NewTable(
		Descriptor{Path: "/lots/:id", Name: "lot"},
		Descriptor{Path: "/lots/new", Name: "new-lot"},
	)
	require.NoError(t, err)

	m, ok := table.Resolve("/lots/new")
	require.True(t, ok)
	assert.Equal(t, "new-lot", m.Name())
}

func TestByName_Unknown(t *testing.T) {
	_, err := Default().ByName("nope")
	assert.ErrorIs(t, err, ErrUnknownRoute)
}

func TestNewTable_CopiesInput(t *testing.T) {
	descs := []Descriptor{{Path: "/login", Name: NameLogin}}
	table, err := NewTable(descs...)
	require.NoError(t, err)

	descs[0].Meta.RequiresAuth = true

	m, ok := table.Resolve("/login")
	require.True(t, ok)
	assert.False(t, m.RequiresAuth(), "table is immutable after construction")
}

func TestNewTable_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		descs []Descriptor
		want  string
	}{
		{name: "empty", descs: nil, want: "no routes"},
		{name: "missing path", descs: []Descriptor{{Name: "x"}}, want: "cannot be blank"},
		{name: "duplicate name", descs: []Descriptor{{Path: "/a", Name: "x"}, {Path: "/b", Name: "x"}}, want: "name \"x\""},
		{name: "duplicate path", descs: []Descriptor{{Path: "/a"}, {Path: "/a/"}}, want: "duplicate path"},
		{name: "unknown role", descs: []Descriptor{{Path: "/a", Meta: Meta{RequiresAuth: true, RequiresRole: "owner"}}}, want: "admin or user"},
		{name: "role without auth", descs: []Descriptor{{Path: "/a", Meta: Meta{RequiresRole: session.RoleAdmin}}}, want: "not authentication"},
		{name: "dangling redirect", descs: []Descriptor{{Path: "/", Redirect: "/missing"}}, want: "does not resolve"},
		{name: "query in path", descs: []Descriptor{{Path: "/a?b=1"}}, want: "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.descs...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRoutes_Listing(t *testing.T) {
	routes := Default().Routes()
	require.Len(t, routes, 6)
	assert.Equal(t, Flat{Path: "/", Redirect: "/login"}, routes[0])
	assert.Equal(t, Flat{Path: "/admin-dashboard", Name: NameAdminDashboard, RequiresAuth: true, RequiresRole: session.RoleAdmin}, routes[3])
}

func TestMustTable_Panics(t *testing.T) {
	assert.Panics(t, func() { MustTable() })
}
