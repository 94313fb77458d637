// Package origin normalizes browser Origin headers and decides whether a
// cross-origin WebSocket upgrade or HTTP request may proceed.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Wildcard in an allow list admits every origin.
const Wildcard = "*"

// NormalizeHeader validates an Origin header value and returns it as
// scheme://host[:port] together with its host[:port] part. Scheme and host are
// lower-cased and default ports are dropped. The opaque origin "null" is
// accepted and returned unchanged with an empty host.
func NormalizeHeader(header string) (normalized, host string, ok bool) {
	raw := strings.TrimSpace(header)
	switch raw {
	case "":
		return "", "", false
	case "null":
		return "null", "", true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalAuthority(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Policy is an origin allow list. The zero value admits same-host origins
// only.
type Policy struct {
	allowed []string
}

// NewPolicy returns a policy for the given entries, each either Wildcard or an
// origin already passed through NormalizeHeader.
func NewPolicy(allowed []string) Policy {
	return Policy{allowed: append([]string(nil), allowed...)}
}

// AllowsAny reports whether the policy contains Wildcard.
func (p Policy) AllowsAny() bool {
	for _, a := range p.allowed {
		if a == Wildcard {
			return true
		}
	}
	return false
}

// Check reports whether a request carrying originHeader and addressed to
// requestHost is admitted. Requests without an Origin header come from
// non-browser clients and are always admitted.
func (p Policy) Check(originHeader, requestHost string) bool {
	if strings.TrimSpace(originHeader) == "" {
		return true
	}
	normalized, host, ok := NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return IsAllowed(normalized, host, requestHost, p.allowed)
}

// IsAllowed matches a normalized origin against allowed. With an empty list
// only an origin whose host[:port] equals the request Host is admitted; the
// scheme is not compared since TLS may terminate at a proxy in front of the
// relay.
func IsAllowed(normalizedOrigin, originHost, requestHost string, allowed []string) bool {
	if len(allowed) > 0 {
		for _, a := range allowed {
			if a == Wildcard || a == normalizedOrigin {
				return true
			}
		}
		return false
	}

	scheme, _, found := strings.Cut(normalizedOrigin, "://")
	if !found || (scheme != "http" && scheme != "https") {
		return false
	}
	reqHost, ok := canonicalAuthority(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	return ok && reqHost == originHost
}

// canonicalAuthority lower-cases host[:port], brackets IPv6 literals and
// drops the default port for scheme.
func canonicalAuthority(authority, scheme string) (string, bool) {
	hostname, rawPort, ok := splitHostPort(authority)
	if !ok || hostname == "" {
		return "", false
	}
	hostname = strings.ToLower(hostname)

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	if strings.Contains(hostname, ":") {
		hostname = "[" + hostname + "]"
	}
	if port == 0 {
		return hostname, true
	}
	return hostname + ":" + strconv.FormatUint(port, 10), true
}

// splitHostPort splits host[:port], stripping brackets from IPv6 literals.
// The port is returned unvalidated.
func splitHostPort(authority string) (hostname, port string, ok bool) {
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		hostname, rest := authority[1:end], authority[end+1:]
		if rest == "" {
			return hostname, "", true
		}
		port, found := strings.CutPrefix(rest, ":")
		if !found || port == "" {
			return "", "", false
		}
		return hostname, port, true
	}

	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", authority != ""
	case 1:
		hostname, port, _ = strings.Cut(authority, ":")
		if hostname == "" || port == "" {
			return "", "", false
		}
		return hostname, port, true
	default:
		return "", "", false
	}
}
