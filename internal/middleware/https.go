// Package middleware holds small, composable HTTP wrappers.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/yanizio/siteconf/internal/tenant"
)

// HostTenant is satisfied by *tenant.Resolver.
type HostTenant interface {
	HostTenant(ctx context.Context, hostHeader string) (string, bool, error)
}

// ForceHTTPS wraps h.  If the request is plain HTTP, the host is not
// "localhost", and hosts confirms the hostname belongs to a tenant, the
// wrapper issues a 308 to the HTTPS version of the same URL.  Otherwise it
// calls h unchanged, so API calls on unknown hosts still get JSON errors.
func ForceHTTPS(hosts HostTenant, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if secure(r) || tenant.NormalizeHost(r.Host) == "localhost" {
			h.ServeHTTP(w, r)
			return
		}

		if _, ok, err := hosts.HostTenant(r.Context(), r.Host); err == nil && ok {
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}

		h.ServeHTTP(w, r)
	})
}

// secure honours a TLS-terminating proxy in front of the server.
func secure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
