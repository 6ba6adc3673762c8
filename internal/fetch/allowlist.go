package fetch

import (
	"net/url"
	"strings"

	"github.com/hewell/mediafetch/internal/faults"
)

// domainAllowlist stores exact hosts and suffix wildcards derived from
// configuration. A nil allowlist permits every host.
type domainAllowlist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainAllowlist(patterns []string) *domainAllowlist {
	matcher := &domainAllowlist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			suffix := strings.TrimPrefix(value, "*.")
			if suffix != "" {
				matcher.addSuffix(suffix)
			}
		case strings.HasPrefix(value, "."):
			suffix := strings.TrimPrefix(value, ".")
			if suffix != "" {
				matcher.addSuffix(suffix)
			}
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (a *domainAllowlist) addSuffix(suffix string) {
	for _, existing := range a.suffixes {
		if existing == suffix {
			return
		}
	}
	a.suffixes = append(a.suffixes, suffix)
}

// Allowed reports whether the host may be fetched from.
func (a *domainAllowlist) Allowed(host string) bool {
	if a == nil {
		return true
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := a.exact[host]; exact {
		return true
	}
	for _, suffix := range a.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// CheckURL enforces the allowlist against a parsed, validated URL.
func (a *domainAllowlist) CheckURL(validatedURL string) error {
	if a == nil {
		return nil
	}
	u, err := url.Parse(validatedURL)
	if err != nil {
		return faults.New(faults.CodeValidationInvalidURL, err.Error(), err)
	}
	if !a.Allowed(u.Hostname()) {
		return faults.New(faults.CodeValidationDomainNotAllowed, "", nil).
			WithContext("url", validatedURL).
			WithContext("host", u.Hostname())
	}
	return nil
}
