package gatekeeper

import (
	"campusgate/internal/model"
	"campusgate/internal/navigation"
	"fmt"
	"golang.org/x/exp/slices"
	"strings"
)

// Routes maps each role to the screen its users land on. Every role key is
// also a protected area: only a session with that role may stay inside it.
type Routes struct {
	Entry      string
	Login      string
	Dashboards map[model.Role]string
}

func DefaultRoutes() Routes {
	dash := make(map[model.Role]string, len(model.Roles))
	for _, r := range model.Roles {
		dash[r] = fmt.Sprintf("/(%s)/Dashboard", r)
	}
	return Routes{
		Entry:      "/",
		Login:      "/login",
		Dashboards: dash,
	}
}

// WithDashboards returns a copy with the given role destinations added or
// overridden.
func (r Routes) WithDashboards(overrides map[string]string) Routes {
	out := Routes{Entry: r.Entry, Login: r.Login, Dashboards: make(map[model.Role]string, len(r.Dashboards)+len(overrides))}
	for role, dest := range r.Dashboards {
		out.Dashboards[role] = dest
	}
	for role, dest := range overrides {
		out.Dashboards[model.Role(role)] = dest
	}
	return out
}

func (r Routes) Dashboard(role model.Role) (string, bool) {
	dest, ok := r.Dashboards[role]
	return dest, ok
}

func (r Routes) Protected(area string) bool {
	if area == "" {
		return false
	}
	_, ok := r.Dashboards[model.Role(area)]
	return ok
}

// Areas lists protected areas in a stable order.
func (r Routes) Areas() []string {
	out := make([]string, 0, len(r.Dashboards))
	for role := range r.Dashboards {
		out = append(out, string(role))
	}
	slices.Sort(out)
	return out
}

func (r Routes) Validate() error {
	for _, p := range []string{r.Entry, r.Login} {
		if _, err := navigation.ParseLocation(p); err != nil {
			return fmt.Errorf("route %q: %w", p, err)
		}
	}
	for role, dest := range r.Dashboards {
		if strings.TrimSpace(string(role)) == "" {
			return fmt.Errorf("dashboard %q has no role", dest)
		}
		loc, err := navigation.ParseLocation(dest)
		if err != nil {
			return fmt.Errorf("dashboard for %s: %w", role, err)
		}
		if loc.Area() != string(role) {
			return fmt.Errorf("dashboard for %s must live in area (%s), got %q", role, role, dest)
		}
	}
	return nil
}
