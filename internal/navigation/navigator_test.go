// ABOUTME: Tests for the navigator: redirect following, loop detection and history
// ABOUTME: Uses the default route table with in-memory sessions

package navigation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gatekeeper/internal/guard"
	"github.com/2389/gatekeeper/internal/route"
	"github.com/2389/gatekeeper/internal/session"
)

func newTestNavigator(sess session.Session) (*Navigator, *session.MemoryStore) {
	store := session.NewMemoryStore(sess)
	return New(route.Default(), guard.New(store)), store
}

func TestPush_Landings(t *testing.T) {
	tests := []struct {
		name     string
		session  session.Session
		path     string
		wantPath string
		wantHops int
	}{
		{name: "root redirects to login", path: "/", wantPath: "/login", wantHops: 1},
		{name: "anonymous admin dashboard", path: "/admin-dashboard", wantPath: "/login", wantHops: 1},
		{name: "anonymous profile", path: "/profile", wantPath: "/login", wantHops: 1},
		{name: "anonymous register", path: "/register", wantPath: "/register"},
		{name: "user to admin dashboard", session: session.Session{Token: "t", Role: session.RoleUser}, path: "/admin-dashboard", wantPath: "/dashboard", wantHops: 1},
		{name: "admin to user dashboard", session: session.Session{Token: "t", Role: session.RoleAdmin}, path: "/dashboard", wantPath: "/admin-dashboard", wantHops: 1},
		{name: "admin to login", session: session.Session{Token: "t", Role: session.RoleAdmin}, path: "/login", wantPath: "/admin-dashboard", wantHops: 1},
		{name: "logged in root", session: session.Session{Token: "t", Role: session.RoleUser}, path: "/", wantPath: "/dashboard", wantHops: 2},
		{name: "user profile", session: session.Session{Token: "t", Role: session.RoleUser}, path: "/profile", wantPath: "/profile"},
		{name: "query and trailing slash", session: session.Session{Token: "t", Role: session.RoleAdmin}, path: "/admin-dashboard/?tab=lots", wantPath: "/admin-dashboard"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nav, _ := newTestNavigator(tt.session)

			res, err := nav.Push(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, res.Match.Path)
			assert.Len(t, res.Hops, tt.wantHops)
			assert.Equal(t, tt.wantHops > 0, res.Redirected())

			current, ok := nav.Current()
			require.True(t, ok)
			assert.Equal(t, tt.wantPath, current.Path)
		})
	}
}

func TestPush_HopDetails(t *testing.T) {
	nav, _ := newTestNavigator(session.Session{Token: "t", Role: session.RoleUser})

	res, err := nav.Push("/admin-dashboard")
	require.NoError(t, err)
	require.Len(t, res.Hops, 1)

	hop := res.Hops[0]
	assert.Equal(t, "/admin-dashboard", hop.From)
	assert.Equal(t, "/dashboard", hop.To)
	assert.False(t, hop.Static)
	assert.Equal(t, guard.ReasonRoleMismatch, hop.Decision.Reason)
}

func TestPush_TokenWithoutRoleLoops(t *testing.T) {
	// The home of an unknown role is the user dashboard, which requires the user role.
	nav, _ := newTestNavigator(session.Session{Token: "t"})

	_, err := nav.Push("/dashboard")
	require.ErrorIs(t, err, ErrRedirectLoop)
	assert.Empty(t, nav.History())
}

func TestPush_UnknownPath(t *testing.T) {
	nav, _ := newTestNavigator(session.Session{})

	_, err := nav.Push("/parking-lots/42")
	require.ErrorIs(t, err, ErrNoRoute)
	_, ok := nav.Current()
	assert.False(t, ok)
}

func TestPush_RedirectLimit(t *testing.T) {
	descs := []route.Descriptor{{Path: "/end", Name: "end"}}
	for i := 0; i <= MaxRedirects; i++ {
		next := fmt.Sprintf("/r%d", i+1)
		if i == MaxRedirects {
			next = "/end"
		}
		descs = append(descs, route.Descriptor{Path: fmt.Sprintf("/r%d", i), Redirect: next})
	}
	descs = append(descs, route.Descriptor{Path: "/login", Name: route.NameLogin})

	nav := New(route.MustTable(descs...), guard.New(session.NewMemoryStore(session.Session{})))

	_, err := nav.Push("/r0")
	require.ErrorIs(t, err, ErrRedirectLoop)

	res, err := nav.Push(fmt.Sprintf("/r%d", 2))
	require.NoError(t, err)
	assert.Equal(t, "/end", res.Match.Path)
}

func TestPush_UnknownGuardTarget(t *testing.T) {
	table := route.MustTable(route.Descriptor{Path: "/secret", Meta: route.Meta{RequiresAuth: true}})
	nav := New(table, guard.New(session.NewMemoryStore(session.Session{})))

	_, err := nav.Push("/secret")
	require.ErrorIs(t, err, ErrUnknownTarget)
}

func TestHistoryAndBack(t *testing.T) {
	ctx := context.Background()
	nav, store := newTestNavigator(session.Session{Token: "t", Role: session.RoleUser})

	_, err := nav.Push("/profile")
	require.NoError(t, err)
	_, err = nav.Push("/dashboard")
	require.NoError(t, err)
	assert.Equal(t, []string{"/profile", "/dashboard"}, nav.History())

	res, err := nav.Back()
	require.NoError(t, err)
	assert.Equal(t, "/profile", res.Match.Path)
	assert.Equal(t, []string{"/profile"}, nav.History())

	_, err = nav.Back()
	require.ErrorIs(t, err, ErrNoHistory)

	// Back is guarded like any navigation
	_, err = nav.Push("/dashboard")
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx))

	res, err = nav.Back()
	require.NoError(t, err)
	assert.Equal(t, "/login", res.Match.Path)
	assert.Equal(t, []string{"/login"}, nav.History())
}

func TestReplace(t *testing.T) {
	nav, _ := newTestNavigator(session.Session{})

	_, err := nav.Replace("/register")
	require.NoError(t, err)
	_, err = nav.Replace("/login")
	require.NoError(t, err)
	assert.Equal(t, []string{"/login"}, nav.History())
}

func TestPush_SeesSessionChanges(t *testing.T) {
	ctx := context.Background()
	nav, store := newTestNavigator(session.Session{})

	res, err := nav.Push("/admin-dashboard")
	require.NoError(t, err)
	assert.Equal(t, "/login", res.Match.Path)

	require.NoError(t, store.Set(ctx, session.Session{Token: "t", Role: session.RoleAdmin}))
	res, err = nav.Push("/admin-dashboard")
	require.NoError(t, err)
	assert.Equal(t, "/admin-dashboard", res.Match.Path)
}

func TestPush_Concurrent(t *testing.T) {
	nav, _ := newTestNavigator(session.Session{Token: "t", Role: session.RoleUser})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = nav.Push("/profile")
		}()
	}
	wg.Wait()

	assert.Len(t, nav.History(), 20)
}
