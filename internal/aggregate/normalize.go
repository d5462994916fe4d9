// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aggregate

import (
	"net/url"
	"strings"
)

// trackingParams lists query parameters that identify campaigns or clicks,
// not pages. Two URLs differing only in these point at the same content.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// NormalizeURL returns the canonical form used for evidence deduplication:
// scheme, host, and path lowercased, default ports dropped, fragment
// removed, trailing slash trimmed, tracking query parameters (utm_*, click
// IDs) stripped. The function is idempotent, so a normalized URL normalizes
// to itself. Unparseable strings are only whitespace- and slash-trimmed.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(trimmed, "/")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.ToLower(strings.TrimSuffix(u.Path, "/"))
	if u.RawPath != "" {
		u.RawPath = strings.ToLower(strings.TrimSuffix(u.RawPath, "/"))
	}
	if q := u.Query(); stripTracking(q) {
		u.RawQuery = q.Encode()
	}

	return u.String()
}

// stripTracking drops tracking parameters in place, reporting whether any
// were present. The query is only re-encoded when something was removed, so
// untracked queries keep their original parameter order.
func stripTracking(q url.Values) bool {
	changed := false
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") {
			delete(q, key)
			changed = true
		}
	}
	return changed
}
