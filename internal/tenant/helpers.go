// internal/tenant/helpers.go
//
// Hostname helpers shared by the resolver, the host cache, and the
// ForceHTTPS middleware.
//
// Context
// -------
//   - `NormalizeHost` turns a raw Host header into the key stored in the
//     domains table: port stripped, lower-cased, trailing dot dropped, and
//     one leading "www." removed.
//
//   - `lookupHost` maps the literal "localhost" to a configured alias so a
//     dev instance can masquerade as any real tenant without an extra row.
//
// Notes
// -----
//   - No logging here; caller decides what to log.
package tenant

import (
	"net"
	"strings"
)

// NormalizeHost canonicalizes a Host header.  It returns "" for an empty
// or unparsable value.
func NormalizeHost(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	} else if strings.HasPrefix(h, "[") && strings.HasSuffix(h, "]") {
		h = h[1 : len(h)-1]
	}
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	return strings.TrimPrefix(h, "www.")
}

// lookupHost applies the localhost alias after normalization.
func lookupHost(normalized, localhostAlias string) string {
	if normalized == "localhost" && localhostAlias != "" {
		return localhostAlias
	}
	return normalized
}
