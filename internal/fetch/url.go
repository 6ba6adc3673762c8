package fetch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/hewell/mediafetch/internal/faults"
)

// NormalizeURL standardizes a URL so cache keys and logs agree on one form.
// It lowercases the scheme and host, removes default ports and fragments,
// and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" && strings.HasSuffix(u.Host, ":80") {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" && strings.HasSuffix(u.Host, ":443") {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	q := u.Query()
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ValidateURL checks syntax and scheme, returning the normalized form.
func ValidateURL(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", faults.New(faults.CodeValidationInvalidURL, "empty URL", nil)
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", faults.New(faults.CodeValidationInvalidURL, err.Error(), err).
			WithContext("url", rawURL)
	}
	u, err := url.Parse(normalized)
	if err != nil || u.Host == "" {
		return "", faults.New(faults.CodeValidationInvalidURL, "missing host", err).
			WithContext("url", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", faults.New(faults.CodeValidationInvalidURL,
			fmt.Sprintf("unsupported scheme %q", u.Scheme), nil).
			WithContext("url", rawURL)
	}
	return normalized, nil
}
