// ABOUTME: Role-to-home route table used for role mismatch and logged-in login redirects
// ABOUTME: Admins land on the admin dashboard, every other role on the user dashboard

package guard

import (
	"github.com/2389/gatekeeper/internal/route"
	"github.com/2389/gatekeeper/internal/session"
)

// HomeRoutes maps a role to the route name of its landing page.
type HomeRoutes struct {
	ByRole  map[session.Role]string
	Default string // for roles not in ByRole, including an absent role
}

// DefaultHomes sends admins to the admin dashboard and everyone else to the
// user dashboard.
func DefaultHomes() HomeRoutes {
	return HomeRoutes{
		ByRole: map[session.Role]string{
			session.RoleAdmin: route.NameAdminDashboard,
		},
		Default: route.NameUserDashboard,
	}
}

// For returns the home route name for role.
func (h HomeRoutes) For(role session.Role) string {
	if name, ok := h.ByRole[role]; ok {
		return name
	}
	return h.Default
}
