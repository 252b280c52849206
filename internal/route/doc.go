// Package route declares the client's navigable paths and their access
// requirements, and resolves a path to its matched ancestry.
//
// Routes nest: a child path is relative to its parent, and authentication
// declared on any ancestor applies to every descendant. A role requirement is
// read from the leaf only.
//
//	table := route.MustTable(
//	    route.Descriptor{Path: "/login", Name: route.NameLogin},
//	    route.Descriptor{
//	        Path: "/admin",
//	        Meta: route.Meta{RequiresAuth: true},
//	        Children: []route.Descriptor{
//	            {Path: "lots/:id", Name: "admin-lot", Meta: route.Meta{RequiresRole: session.RoleAdmin}},
//	        },
//	    },
//	)
//	m, ok := table.Resolve("/admin/lots/7")
//	m.RequiresAuth() // true, from /admin
//
// Tables are validated on construction and immutable afterwards.
package route
