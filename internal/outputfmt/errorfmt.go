package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	absoluteURLInTextRE = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// Bot API paths embed the token as /bot<id>:<secret>/.
	botTokenPathRE = regexp.MustCompile(`/bot[0-9]+:[A-Za-z0-9_-]+`)
)

// FormatErrorForDisplay sanitizes error text for owner-facing output.
func FormatErrorForDisplay(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeErrorText(err.Error())
}

// SanitizeErrorText removes URL hosts and credentials from arbitrary text
// while keeping the rest of the path and query.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	out := absoluteURLInTextRE.ReplaceAllStringFunc(raw, sanitizeURLInText)
	return botTokenPathRE.ReplaceAllString(out, "/bot[redacted]")
}

func sanitizeURLInText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if q := redactSensitiveQuery(u.Query()); q != "" {
		path += "?" + q
	}
	if frag := strings.TrimSpace(u.EscapedFragment()); frag != "" {
		path += "#" + frag
	}
	return path
}

func redactSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, "[redacted]")
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	n := strings.ToLower(strings.TrimSpace(key))
	n = strings.NewReplacer("-", "", "_", "").Replace(n)
	if n == "" {
		return false
	}
	if n == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password", "codehash", "phone"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}
