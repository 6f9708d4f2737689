package httpapi

import (
	"net/http"

	"github.com/yanizio/siteconf/internal/auth"
	"github.com/yanizio/siteconf/internal/tenant"
)

// identify resolves the caller once and stores the Identity in the request
// context.  Read routes use it; it never rejects an anonymous caller.
func (a *API) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := a.d.Identities.ResolveRequest(r)
		if err != nil {
			a.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(tenant.WithIdentity(r.Context(), id)))
	})
}

// requireUser admits only a live session, from the cookie or a bearer
// header.  The hostname is never consulted.
func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := a.d.Cookies.Token(r)
		u, err := a.d.Identities.Authenticate(r.Context(), token)
		if err != nil {
			a.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
	})
}

func identityFrom(r *http.Request) tenant.Identity {
	id, ok := tenant.FromContext(r.Context())
	if !ok {
		return tenant.Identity{Source: tenant.SourceNone}
	}
	return id
}
