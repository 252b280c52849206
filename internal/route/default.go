// ABOUTME: Route table of the parking client: public auth pages and role-gated dashboards
// ABOUTME: The root path redirects to the login page

package route

import "github.com/2389/gatekeeper/internal/session"

// DefaultDescriptors returns the parking client's route declarations.
func DefaultDescriptors() []Descriptor {
	return []Descriptor{
		{Path: "/", Redirect: "/login"},
		{Path: "/login", Name: NameLogin},
		{Path: "/register", Name: NameRegister},
		{
			Path: "/admin-dashboard",
			Name: NameAdminDashboard,
			Meta: Meta{RequiresAuth: true, RequiresRole: session.RoleAdmin},
		},
		{
			// both user & admin
			Path: "/profile",
			Name: NameProfile,
			Meta: Meta{RequiresAuth: true},
		},
		{
			Path: "/dashboard",
			Name: NameUserDashboard,
			Meta: Meta{RequiresAuth: true, RequiresRole: session.RoleUser},
		},
	}
}

// Default returns the parking client's route table.
func Default() *Table {
	return MustTable(DefaultDescriptors()...)
}
