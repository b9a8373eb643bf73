package guard

import (
	"regexp"
	"sort"

	"github.com/kirim-crm/kirim-crm/internal/auth"
)

// RoutePolicy describes the protection requirements of one path.
type RoutePolicy struct {
	RequireAuth       bool
	AllowedRoles      []auth.Role // nil = any authenticated role
	RedirectTo        string      // where to send authenticated visitors (login page only)
	PreserveReturnURL bool
}

// Capability is the single authoritative permission set of a role: the
// routes it may visit and the feature actions it may perform. Route
// policies and feature checks are both derived from this table so the two
// can never drift apart.
type Capability struct {
	Routes   []string
	Features []string
}

var capabilities = map[auth.Role]Capability{
	auth.RoleAdmin: {
		Routes: []string{"/", "/dashboard", "/customers", "/jobs", "/reports", "/settings", "/profile"},
		Features: []string{
			"users:create", "users:read", "users:update", "users:delete",
			"customers:create", "customers:read", "customers:update", "customers:delete",
			"jobs:create", "jobs:read", "jobs:update", "jobs:delete",
			"reports:read",
			"settings:read", "settings:update",
		},
	},
	auth.RoleManager: {
		Routes: []string{"/", "/dashboard", "/customers", "/jobs", "/reports", "/profile"},
		Features: []string{
			"customers:create", "customers:read", "customers:update", "customers:delete",
			"jobs:create", "jobs:read", "jobs:update", "jobs:delete",
			"reports:read",
			"users:read",
		},
	},
	auth.RoleOperator: {
		Routes: []string{"/", "/dashboard", "/customers", "/jobs", "/profile"},
		Features: []string{
			"customers:read", "customers:update",
			"jobs:read", "jobs:update",
		},
	},
}

// protectedPaths lists every path that requires authentication. Role sets
// are computed from the capability table at init.
var protectedPaths = []string{"/", "/dashboard", "/customers", "/jobs", "/reports", "/settings", "/profile"}

// detailRoutes maps detail-page patterns to the collection whose policy
// governs them. The ID patterns mirror the return-URL whitelist, so every
// page the guard can send a user back to is also guarded on the way in.
var detailRoutes = []struct {
	pattern    *regexp.Regexp
	collection string
}{
	{regexp.MustCompile(`^/customers/[a-zA-Z0-9-]+$`), "/customers"},
	{regexp.MustCompile(`^/jobs/[a-zA-Z0-9-]+$`), "/jobs"},
}

// LoginPath is the single entry point for authentication.
const LoginPath = "/login"

// DefaultHomePath is where authenticated users land by default.
const DefaultHomePath = "/"

var routeTable map[string]RoutePolicy

func init() {
	routeTable = make(map[string]RoutePolicy, len(protectedPaths)+1)
	routeTable[LoginPath] = RoutePolicy{
		RequireAuth: false,
		RedirectTo:  DefaultHomePath,
	}
	for _, path := range protectedPaths {
		routeTable[path] = RoutePolicy{
			RequireAuth:       true,
			AllowedRoles:      rolesForRoute(path),
			PreserveReturnURL: true,
		}
	}
}

func rolesForRoute(path string) []auth.Role {
	var roles []auth.Role
	for role, cap := range capabilities {
		for _, p := range cap.Routes {
			if p == path {
				roles = append(roles, role)
				break
			}
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// PolicyFor looks up the protection requirements for a path. Unlisted
// paths fail open (no auth required); see the route protection notes in
// DESIGN.md before relying on that default for anything sensitive.
func PolicyFor(path string) RoutePolicy {
	if policy, ok := routeTable[path]; ok {
		return policy
	}
	for _, d := range detailRoutes {
		if d.pattern.MatchString(path) {
			return routeTable[d.collection]
		}
	}
	return RoutePolicy{RequireAuth: false}
}

// Can reports whether the role is granted the feature action.
func Can(role auth.Role, feature string) bool {
	cap, ok := capabilities[role]
	if !ok {
		return false
	}
	for _, f := range cap.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// RoleAllowed reports whether the role may visit the path according to the
// policy table. Paths without a policy allow every role.
func RoleAllowed(path string, role auth.Role) bool {
	policy := PolicyFor(path)
	if !policy.RequireAuth || len(policy.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range policy.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}
