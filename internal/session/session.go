// internal/session/session.go
//
// Session cookie and bearer-token helpers.
//
// Context
//   The session id itself is an opaque random token stored server-side in
//   the metadata store.  This package only moves it between the browser and
//   the server: set it after login, clear it on logout, and read it back
//   from either the cookie or an `Authorization: Bearer` header.
//
// Style
//   Two-space sentence spacing, Oxford comma, terse inline notes.
//
//------------------------------------------------------------------------------

package session

import (
	"net/http"
	"strings"
	"time"
)

// DefaultCookieName is used when a Cookies value has no Name.
const DefaultCookieName = "siteconf_session"

// Cookies writes and reads the session cookie with one fixed policy.
type Cookies struct {
	Name string
	// Insecure drops the Secure flag for plain-HTTP development.
	Insecure bool
}

func (c Cookies) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// Set stores token with an absolute expiry.  HttpOnly and SameSite=Lax are
// always on.
func (c Cookies) Set(w http.ResponseWriter, token string, expires time.Time) {
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   !c.Insecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
	})
}

// Clear expires the cookie in the browser.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !c.Insecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// FromCookieHeader extracts the token from a raw Cookie header value.
func (c Cookies) FromCookieHeader(header string) string {
	if header == "" {
		return ""
	}
	r := http.Request{Header: http.Header{"Cookie": {header}}}
	ck, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return ck.Value
}

// Token returns the session token carried by r.  The cookie wins over a
// bearer header.  ok is false when neither is present.
func (c Cookies) Token(r *http.Request) (token string, ok bool) {
	if ck, err := r.Cookie(c.name()); err == nil && ck.Value != "" {
		return ck.Value, true
	}
	if t := Bearer(r.Header.Get("Authorization")); t != "" {
		return t, true
	}
	return "", false
}

// Bearer returns the credential of an "Authorization: Bearer x" header.
func Bearer(header string) string {
	scheme, cred, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(cred)
}
