package guard

import (
	"strings"

	"github.com/dmitrijs2005/greenmission/internal/client/models"
)

const (
	SignInPath          = "/auth/signin"
	ContributorHomePath = "/dashboard"
	NGOHomePath         = "/ngo/dashboard"
)

// HomeFor returns the landing route of role.
func HomeFor(role models.Role) string {
	switch role {
	case models.RoleNGO:
		return NGOHomePath
	case models.RoleContributor:
		return ContributorHomePath
	default:
		return SignInPath
	}
}

type route struct {
	prefix string
	role   models.Role
}

// RouteTable maps path prefixes to the role their page tree requires.
type RouteTable struct {
	routes []route
}

// DefaultRoutes is the application's page trees.
func DefaultRoutes() *RouteTable {
	t := &RouteTable{}
	t.Add("/ngo", models.RoleNGO)
	for _, p := range []string{"/dashboard", "/profile", "/missions", "/add-location", "/my-locations", "/settings"} {
		t.Add(p, models.RoleContributor)
	}
	return t
}

func (t *RouteTable) Add(prefix string, role models.Role) {
	t.routes = append(t.routes, route{prefix: strings.TrimRight(prefix, "/"), role: role})
}

// Required returns the role path needs. ok is false for public paths.
func (t *RouteTable) Required(path string) (role models.Role, ok bool) {
	path = normalize(path)
	best := -1
	for i, r := range t.routes {
		if path == r.prefix || strings.HasPrefix(path, r.prefix+"/") {
			if best < 0 || len(r.prefix) > len(t.routes[best].prefix) {
				best = i
			}
		}
	}
	if best < 0 {
		return "", false
	}
	return t.routes[best].role, true
}

func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	return path
}
