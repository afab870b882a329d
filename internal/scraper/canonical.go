package scraper

import (
	"fmt"
	"net/url"
	"strings"
)

// Query parameters stripped during canonicalization. They vary per visit
// without changing which posting the URL identifies.
var trackingParams = map[string]bool{
	"gclid":      true,
	"fbclid":     true,
	"msclkid":    true,
	"ref":        true,
	"refid":      true,
	"source":     true,
	"trk":        true,
	"trackingid": true,
	"mc_cid":     true,
	"mc_eid":     true,
}

// Canonicalize normalizes a listing URL into the dedup key: lowercase scheme
// and host, default ports and fragments removed, tracking parameters stripped,
// remaining query sorted, trailing slash dropped.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %q", u.Scheme, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}

	q := u.Query()
	for param := range q {
		lower := strings.ToLower(param)
		if trackingParams[lower] || strings.HasPrefix(lower, "utm_") {
			q.Del(param)
		}
	}
	// Values.Encode sorts keys, so equal URLs canonicalize identically.
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
