package maskutil

import (
	"net/url"
	"strings"
)

// MaskString hides everything but the first visibleStart and last visibleEnd
// characters of a secret.
func MaskString(secret string, visibleStart, visibleEnd int) string {
	if len(secret) <= visibleStart+visibleEnd {
		return strings.Repeat("*", len(secret))
	}

	start := secret[:visibleStart]
	end := secret[len(secret)-visibleEnd:]
	return start + strings.Repeat("*", len(secret)-(visibleStart+visibleEnd)) + end
}

// RedactDSN replaces the password of a URL-style DSN. Plain file paths and
// DSNs that do not parse are returned unchanged.
func RedactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); !ok {
		return dsn
	}
	return u.Redacted()
}
