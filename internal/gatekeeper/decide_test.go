package gatekeeper

import (
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"campusgate/internal/session"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authed(role model.Role) State {
	return State{Status: Authenticated, Role: role}
}

func TestDecide(t *testing.T) {
	routes := DefaultRoutes()

	tests := []struct {
		name     string
		state    State
		location string
		want     string
		redirect bool
	}{
		{name: "loading on protected area", state: State{Status: Loading}, location: "/(admin)/Dashboard"},
		{name: "loading on entry", state: State{Status: Loading}, location: "/"},
		{name: "loading on login", state: State{Status: Loading}, location: "/login"},

		{name: "anonymous in school area", state: State{Status: Unauthenticated}, location: "/(school)/Dashboard", want: "/", redirect: true},
		{name: "anonymous deep in shop area", state: State{Status: Unauthenticated}, location: "/(shop)/orders/42", want: "/", redirect: true},
		{name: "anonymous on entry", state: State{Status: Unauthenticated}, location: "/"},
		{name: "anonymous on login", state: State{Status: Unauthenticated}, location: "/login"},
		{name: "anonymous on public group", state: State{Status: Unauthenticated}, location: "/(auth)/register"},

		{name: "student on entry", state: authed(model.RoleStudent), location: "/", want: "/(student)/Dashboard", redirect: true},
		{name: "student on login", state: authed(model.RoleStudent), location: "/login", want: "/(student)/Dashboard", redirect: true},
		{name: "student in shop area", state: authed(model.RoleStudent), location: "/(shop)/Dashboard", want: "/(student)/Dashboard", redirect: true},
		{name: "student on own dashboard", state: authed(model.RoleStudent), location: "/(student)/Dashboard"},
		{name: "student deeper in own area", state: authed(model.RoleStudent), location: "/(student)/prints/7"},
		{name: "student on public screen", state: authed(model.RoleStudent), location: "/shops/nearby"},

		{name: "admin in user area", state: authed(model.RoleAdmin), location: "/(user)/Dashboard", want: "/(admin)/Dashboard", redirect: true},
		{name: "school on entry", state: authed(model.RoleSchool), location: "/", want: "/(school)/Dashboard", redirect: true},
		{name: "shop in student area", state: authed(model.RoleShop), location: "/(student)/Dashboard", want: "/(shop)/Dashboard", redirect: true},
		{name: "user on entry", state: authed(model.RoleUser), location: "/", want: "/(user)/Dashboard", redirect: true},

		{name: "bogus role on entry", state: authed("bogus"), location: "/", want: "/", redirect: true},
		{name: "bogus role in student area", state: authed("bogus"), location: "/(student)/Dashboard", want: "/", redirect: true},
		{name: "bogus role on public screen", state: authed("bogus"), location: "/shops/nearby", want: "/", redirect: true},
		{name: "missing role", state: authed(""), location: "/(school)/Dashboard", want: "/", redirect: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Decide(tt.state, navigation.MustParse(tt.location), routes)
			assert.Equal(t, tt.redirect, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecide_CustomDashboards(t *testing.T) {
	routes := DefaultRoutes().WithDashboards(map[string]string{
		"shop":    "/(shop)/Orders",
		"courier": "/(courier)/Deliveries",
	})
	require.NoError(t, routes.Validate())

	got, ok := Decide(authed(model.RoleShop), navigation.MustParse("/"), routes)
	assert.True(t, ok)
	assert.Equal(t, "/(shop)/Orders", got)

	got, ok = Decide(authed("courier"), navigation.MustParse("/(admin)/Dashboard"), routes)
	assert.True(t, ok)
	assert.Equal(t, "/(courier)/Deliveries", got)

	got, ok = Decide(State{Status: Unauthenticated}, navigation.MustParse("/(courier)/Deliveries"), routes)
	assert.True(t, ok)
	assert.Equal(t, "/", got)
}

func TestRoutes_Validate(t *testing.T) {
	assert.NoError(t, DefaultRoutes().Validate())

	bad := DefaultRoutes().WithDashboards(map[string]string{"shop": "/(student)/Dashboard"})
	assert.Error(t, bad.Validate())

	// a role-less user must never get a dashboard of its own
	for _, role := range []string{"", "  "} {
		noRole := DefaultRoutes().WithDashboards(map[string]string{role: "/home"})
		assert.Error(t, noRole.Validate(), "role %q", role)
	}

	assert.Equal(t, []string{"admin", "school", "shop", "student", "user"}, DefaultRoutes().Areas())
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, State{Status: Loading}, StateOf(session.Snapshot{Loading: true, Token: "t", User: model.User{"role": "shop"}}))
	assert.Equal(t, State{Status: Unauthenticated}, StateOf(session.Snapshot{}))
	assert.Equal(t, State{Status: Unauthenticated}, StateOf(session.Snapshot{Token: "t"}))
	assert.Equal(t, State{Status: Unauthenticated}, StateOf(session.Snapshot{User: model.User{"role": "shop"}}))
	assert.Equal(t, authed(model.RoleShop), StateOf(session.Snapshot{Token: "t", User: model.User{"role": "shop"}}))
	assert.Equal(t, authed(""), StateOf(session.Snapshot{Token: "t", User: model.User{"name": "no role"}}))
}
