package common

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizePageURL canonicalizes a page URL: lowercase scheme and host, drop
// the fragment, strip a trailing slash from the path (keeping bare "/"),
// preserve the query and percent-encoding as given.
func NormalizePageURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse url %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("url %q must use http or https", raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	path := parsed.EscapedPath()
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.RawPath = ""
	parsed.Path = path
	if p, err := url.PathUnescape(path); err == nil {
		parsed.Path = p
		if p != path {
			parsed.RawPath = path
		}
	}

	return parsed.String(), nil
}

// NormalizeBaseURL canonicalizes a site base URL: lowercase scheme and host,
// trailing slash appended.
func NormalizeBaseURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse base url %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("base url %q must have a scheme and host", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	normalized := parsed.String()
	if !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	return normalized, nil
}

// HostFromURL extracts the lowercased host from a URL or bare domain string.
func HostFromURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, "://") {
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			return strings.ToLower(parsed.Hostname())
		}
	}
	host := strings.ToLower(trimmed)
	host = strings.TrimPrefix(host, "www.")
	if idx := strings.IndexAny(host, "/:"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// IsValidDomain checks a hostname against a strict DNS label grammar:
// labels of letters, digits and hyphens, no leading/trailing hyphen,
// at least two labels.
func IsValidDomain(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	labels := strings.Split(strings.ToLower(domain), ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
				return false
			}
		}
	}
	return true
}
