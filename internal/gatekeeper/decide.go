package gatekeeper

import (
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"campusgate/internal/session"
)

type Status int

const (
	Loading Status = iota
	Unauthenticated
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is Loading, Unauthenticated, or Authenticated with a role. Role is
// only meaningful for Authenticated.
type State struct {
	Status Status
	Role   model.Role
}

func StateOf(snap session.Snapshot) State {
	switch {
	case snap.Loading:
		return State{Status: Loading}
	case !snap.Authenticated():
		return State{Status: Unauthenticated}
	default:
		return State{Status: Authenticated, Role: snap.User.Role()}
	}
}

// Decide returns where the user has to be sent from loc, or ok=false when
// the current screen is acceptable.
func Decide(state State, loc navigation.Location, routes Routes) (string, bool) {
	switch state.Status {
	case Unauthenticated:
		if routes.Protected(loc.Area()) {
			return routes.Entry, true
		}
		return "", false

	case Authenticated:
		dashboard, known := routes.Dashboard(state.Role)
		if !known {
			return routes.Entry, true
		}

		area := loc.Area()
		if area == string(state.Role) {
			return "", false
		}

		path := loc.Path()
		if path == normalize(routes.Entry) || path == normalize(routes.Login) || routes.Protected(area) {
			return dashboard, true
		}
		return "", false

	default:
		return "", false
	}
}

func normalize(path string) string {
	loc, err := navigation.ParseLocation(path)
	if err != nil {
		return path
	}
	return loc.Path()
}
