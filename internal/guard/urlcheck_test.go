package guard

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"/jobs", "/jobs"},
		{"/jobs/", "/jobs"},
		{"/", "/"},
		{"", "/"},
		{"//jobs///detail", "/jobs/detail"},
		{"/jobs/../admin", "/jobs/admin"},
		{"/jobs/..%2F", "/jobs/%2F"},
		{`/jobs<script>`, "/jobsscript"},
		{`/jobs'"`, "/jobs"},
		{"/a/..../b", "/a/b"},
	}
	for _, tc := range cases {
		got := SanitizePath(tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
		assert.NotContains(t, got, "..")
		assert.NotContains(t, got, "//")
		for _, ch := range []string{"<", ">", "'", `"`} {
			assert.NotContains(t, got, ch)
		}
	}
}

func TestSanitizePathIdempotent(t *testing.T) {
	inputs := []string{"/jobs/../x//y/", `/cust<omer>'s"`, "///", "/a/.../b/", "/customers/abc-123"}
	for _, in := range inputs {
		once := SanitizePath(in)
		twice := SanitizePath(once)
		assert.Equal(t, once, twice, "sanitize must be idempotent for %q", in)
	}
}

func newChecker(t *testing.T) *URLChecker {
	t.Helper()
	c, err := NewURLChecker("https://crm.kirim.id", nil)
	require.NoError(t, err)
	return c
}

func TestValidateReturnURLAcceptsWhitelisted(t *testing.T) {
	c := newChecker(t)
	for _, path := range []string{"/", "/customers", "/jobs", "/dashboard", "/customers/abc-123", "/jobs/9f8e7d"} {
		assert.Equal(t, path, c.ValidateReturnURL(path), "path %s should be accepted", path)
	}
}

func TestValidateReturnURLRejects(t *testing.T) {
	c := newChecker(t)
	rejected := []string{
		"https://evil.example.com/jobs",
		"http://crm.kirim.id/jobs", // scheme downgrade
		"//evil.example.com/jobs",
		"/admin",
		"/jobs/abc/def",
		"/customers/abc_123", // underscore not in pattern
		"/login",
		"javascript:alert(1)",
	}
	for _, raw := range rejected {
		assert.Empty(t, c.ValidateReturnURL(raw), "url %s should be rejected", raw)
	}
}

func TestValidateReturnURLSameOriginAbsolute(t *testing.T) {
	c := newChecker(t)
	assert.Equal(t, "/jobs", c.ValidateReturnURL("https://crm.kirim.id/jobs"))
}

func TestLoginURL(t *testing.T) {
	c := newChecker(t)

	assert.Equal(t, "/login", c.LoginURL(""))
	assert.Equal(t, "/login", c.LoginURL("/not-whitelisted"))
	assert.Equal(t, "/login?returnUrl=%2Fjobs", c.LoginURL("/jobs"))
	assert.Equal(t, "/login?returnUrl=%2Fcustomers", c.LoginURL("/customers"))
}

func TestLoginURLRoundTrip(t *testing.T) {
	c := newChecker(t)

	loginURL := c.LoginURL("/customers")
	parsed, err := url.Parse(loginURL)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loginURL, LoginPath))

	back := parsed.Query().Get("returnUrl")
	assert.Equal(t, "/customers", c.ValidateReturnURL(back))
}
