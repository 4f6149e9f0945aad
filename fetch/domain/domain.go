// Package domain derives the canonical domain key that partitions cached
// clients and cookies.
package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNoHost is returned when a URL carries no host to derive a key from.
var ErrNoHost = errors.New("url has no host")

// Key canonicalizes host: it is lower-cased, any port is dropped and
// leading "www." labels are stripped as long as a label remains. Key is
// idempotent.
func Key(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))

	// Bare IPv6 literals carry colons but no port.
	if strings.Count(h, ":") <= 1 || strings.HasPrefix(h, "[") {
		if u, err := url.Parse("//" + h); err == nil && u.Hostname() != "" {
			h = u.Hostname()
		}
	}

	for strings.HasPrefix(h, "www.") && len(h) > len("www.") {
		h = h[len("www."):]
	}

	return h
}

// FromURL returns the domain key for rawURL. A bare host name without a
// scheme is accepted as well.
func FromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}

	host := u.Hostname()
	if host == "" && u.Scheme == "" {
		host = Key(u.Path)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q", ErrNoHost, rawURL)
	}

	return Key(host), nil
}

// Of returns the domain key for s, which is either a host, optionally with
// a port, or an absolute URL. It returns "" when s names no host.
func Of(s string) string {
	if !strings.Contains(s, "://") {
		return Key(s)
	}

	key, err := FromURL(s)
	if err != nil {
		return ""
	}

	return key
}
