// Package identity turns raw posting URLs into canonical identity strings.
//
// Normalize is a pure function of its input and the rule table: no I/O, no clock.
// It is idempotent, so an identity can be passed through it again safely.
package identity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNormalization is matched (errors.Is) by every NormalizationError.
var ErrNormalization = errors.New("url normalization failed")

// NormalizationError reports a raw URL that cannot be turned into an identity.
type NormalizationError struct {
	Raw    string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %q: %s", e.Raw, e.Reason)
}

// Is lets errors.Is(err, ErrNormalization) match.
func (e *NormalizationError) Is(target error) bool { return target == ErrNormalization }

// Normalizer applies the generic rules plus a per-domain canonicalization table.
type Normalizer struct {
	rules map[string]Rule
}

// NewNormalizer indexes rules by bare domain. A later rule for the same domain wins.
func NewNormalizer(rules []Rule) *Normalizer {
	idx := make(map[string]Rule, len(rules))
	for _, r := range rules {
		r.Domain = bareHost(strings.ToLower(strings.TrimSpace(r.Domain)))
		if r.Domain == "" {
			continue
		}
		idx[r.Domain] = r
	}
	return &Normalizer{rules: idx}
}

// Normalize returns the canonical identity of raw.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", &NormalizationError{Raw: raw, Reason: "empty url"}
	}

	switch {
	case strings.HasPrefix(s, "//"):
		s = "https:" + s
	case !strings.Contains(s, "://"):
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", &NormalizationError{Raw: raw, Reason: err.Error()}
	}
	if u.Opaque != "" || u.Host == "" || u.Hostname() == "" {
		return "", &NormalizationError{Raw: raw, Reason: "missing host"}
	}

	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if isDefaultPort(u.Scheme, port) {
		port = ""
	}

	if rule, ok := n.rules[bareHost(host)]; ok {
		host = rule.canonicalHost(host)
		if rule.ForceHTTPS && u.Scheme == "http" {
			u.Scheme = "https"
		}
		u.RawQuery = stripParams(u.RawQuery, rule.TrackingParams)
		if rule.StripFragment {
			u.Fragment, u.RawFragment = "", ""
		}
	}

	if isDefaultPort(u.Scheme, port) {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host

	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	u.RawQuery = escapeSpaces(u.RawQuery)
	if u.RawQuery == "" {
		u.ForceQuery = false
	}

	return u.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "https" && port == "443") || (scheme == "http" && port == "80")
}

// escapeSpaces percent-encodes the spaces url.Parse lets through in a raw
// query. Left raw, a trailing one would be trimmed on the next pass.
func escapeSpaces(rawQuery string) string {
	return strings.ReplaceAll(rawQuery, " ", "%20")
}

func bareHost(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// stripParams drops the named keys from a raw query string, leaving the
// remaining pairs byte-for-byte and in their original order.
func stripParams(rawQuery string, drop []string) string {
	if rawQuery == "" || len(drop) == 0 {
		return rawQuery
	}
	deny := make(map[string]struct{}, len(drop))
	for _, d := range drop {
		deny[strings.ToLower(d)] = struct{}{}
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		key, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if _, tracked := deny[strings.ToLower(key)]; tracked {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}
