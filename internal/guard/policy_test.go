package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirim-crm/kirim-crm/internal/auth"
)

func TestPolicyForProtectedPaths(t *testing.T) {
	for _, path := range protectedPaths {
		policy := PolicyFor(path)
		assert.True(t, policy.RequireAuth, "path %s should require auth", path)
		assert.True(t, policy.PreserveReturnURL, "path %s should preserve return url", path)
		assert.NotEmpty(t, policy.AllowedRoles, "path %s should derive roles", path)
	}
}

func TestPolicyForLoginPage(t *testing.T) {
	policy := PolicyFor(LoginPath)
	assert.False(t, policy.RequireAuth)
	assert.Equal(t, DefaultHomePath, policy.RedirectTo)
}

func TestPolicyForDetailPages(t *testing.T) {
	for _, path := range []string{"/jobs/abc-123", "/customers/7f3a"} {
		policy := PolicyFor(path)
		assert.True(t, policy.RequireAuth, "path %s should require auth", path)
		assert.True(t, policy.PreserveReturnURL, "path %s should preserve return url", path)
	}

	// Detail pages inherit the collection's role set.
	assert.ElementsMatch(t, PolicyFor("/jobs").AllowedRoles, PolicyFor("/jobs/abc-123").AllowedRoles)
	assert.ElementsMatch(t, PolicyFor("/customers").AllowedRoles, PolicyFor("/customers/7f3a").AllowedRoles)

	// Underscores and nested segments fall outside the detail patterns.
	assert.False(t, PolicyFor("/jobs/has_underscore").RequireAuth)
	assert.False(t, PolicyFor("/jobs/abc/status").RequireAuth)
}

func TestPolicyForUnknownPathFailsOpen(t *testing.T) {
	for _, path := range []string{"/about", "/pricing", "/jobs/extra/deep", "/x"} {
		policy := PolicyFor(path)
		assert.False(t, policy.RequireAuth, "unlisted path %s must fail open", path)
		assert.Empty(t, policy.AllowedRoles)
	}
}

func TestRolesDerivedFromCapabilities(t *testing.T) {
	settings := PolicyFor("/settings")
	require.Equal(t, []auth.Role{auth.RoleAdmin}, settings.AllowedRoles)

	reports := PolicyFor("/reports")
	require.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleManager}, reports.AllowedRoles)

	jobs := PolicyFor("/jobs")
	require.ElementsMatch(t, []auth.Role{auth.RoleAdmin, auth.RoleManager, auth.RoleOperator}, jobs.AllowedRoles)
}

func TestRoleAllowed(t *testing.T) {
	assert.True(t, RoleAllowed("/settings", auth.RoleAdmin))
	assert.False(t, RoleAllowed("/settings", auth.RoleManager))
	assert.False(t, RoleAllowed("/reports", auth.RoleOperator))
	assert.True(t, RoleAllowed("/jobs", auth.RoleOperator))
	// Paths without a policy allow every role.
	assert.True(t, RoleAllowed("/about", auth.RoleOperator))
}

func TestCan(t *testing.T) {
	assert.True(t, Can(auth.RoleAdmin, "users:delete"))
	assert.True(t, Can(auth.RoleManager, "jobs:create"))
	assert.False(t, Can(auth.RoleOperator, "jobs:create"))
	assert.True(t, Can(auth.RoleOperator, "jobs:update"))
	assert.False(t, Can(auth.RoleOperator, "settings:read"))
	assert.False(t, Can(auth.Role("ghost"), "jobs:read"))
}
