package guard

import (
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// Whitelist of pathnames a return URL may resolve to. Anything else is
// treated as absent, never "mostly valid".
var allowedReturnPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^/$`),
	regexp.MustCompile(`^/customers$`),
	regexp.MustCompile(`^/jobs$`),
	regexp.MustCompile(`^/dashboard$`),
	regexp.MustCompile(`^/customers/[a-zA-Z0-9-]+$`),
	regexp.MustCompile(`^/jobs/[a-zA-Z0-9-]+$`),
}

var (
	unsafeChars     = regexp.MustCompile(`[<>'"]`)
	traversalSeq    = regexp.MustCompile(`\.\.+`)
	repeatedSlashes = regexp.MustCompile(`/+`)
)

// SanitizePath normalizes a pathname: strips markup characters, removes
// path traversal sequences, collapses repeated slashes and drops the
// trailing slash except for root. Pure transform; idempotent.
func SanitizePath(raw string) string {
	cleaned := unsafeChars.ReplaceAllString(raw, "")
	cleaned = traversalSeq.ReplaceAllString(cleaned, "")
	cleaned = repeatedSlashes.ReplaceAllString(cleaned, "/")
	cleaned = strings.TrimSuffix(cleaned, "/")
	if cleaned == "" {
		return "/"
	}
	return cleaned
}

// URLChecker validates return URLs against the configured origin and the
// pathname whitelist.
type URLChecker struct {
	origin *url.URL
	logger *slog.Logger
}

// NewURLChecker constructs a URLChecker. origin is the canonical base URL
// of the deployment, e.g. https://crm.example.com.
func NewURLChecker(origin string, logger *slog.Logger) (*URLChecker, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, err
	}
	return &URLChecker{origin: base, logger: logger}, nil
}

// ValidateReturnURL parses raw relative to the configured origin and
// returns the pathname when it is same-origin and whitelisted; otherwise
// the empty string. Rejections are logged for audit, never fatal.
func (c *URLChecker) ValidateReturnURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := c.origin.Parse(raw)
	if err != nil {
		c.warn("return url unparseable", raw)
		return ""
	}
	if parsed.Scheme != c.origin.Scheme || parsed.Host != c.origin.Host {
		c.warn("cross-origin return url blocked", raw)
		return ""
	}
	pathname := parsed.Path
	for _, pattern := range allowedReturnPatterns {
		if pattern.MatchString(pathname) {
			return pathname
		}
	}
	c.warn("return url not in whitelist", pathname)
	return ""
}

// LoginURL builds the login path, carrying a validated return URL when the
// argument survives validation.
func (c *URLChecker) LoginURL(returnPath string) string {
	validated := c.ValidateReturnURL(returnPath)
	if validated == "" {
		return LoginPath
	}
	return LoginPath + "?returnUrl=" + url.QueryEscape(validated)
}

func (c *URLChecker) warn(msg, value string) {
	if c.logger != nil {
		c.logger.Warn(msg, slog.String("url", value))
	}
}
