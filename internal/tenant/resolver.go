// internal/tenant/resolver.go
//
// IdentityResolver: which tenant does this request belong to?
//
// Context
// -------
// Two signals exist, checked in a fixed order where the first match wins:
//
//  1. A session token (cookie, or bearer for API clients) that maps to a
//     live session.  The tenant is the owning user's config_id.
//  2. The request hostname, normalized and looked up in the domains table
//     through HostCache.
//
// When neither matches the identity is anonymous with an empty tenant.
// That is a normal outcome, not an error.
//
// Notes
// -----
//   - An expired or unknown token behaves exactly like no token.
//   - Session validation is a store round trip on every call; only the
//     hostname mapping is cached.
//   - Domain is_active and is_paid are not consulted.
//   - The only error is an upstream failure of the metadata store.
package tenant

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/metrics"
	"github.com/yanizio/siteconf/internal/session"
)

// Source names the signal that produced an Identity.
type Source string

const (
	SourceSession Source = "session"
	SourceHost    Source = "host"
	SourceNone    Source = "none"
)

// Identity is the resolved tenant plus, for session identities, the user.
type Identity struct {
	TenantID string     `json:"tenantId"`
	UserID   int64      `json:"userId,omitempty"`
	Source   Source     `json:"source"`
	User     *meta.User `json:"-"`
}

// Anonymous reports whether no tenant was resolved.
func (id Identity) Anonymous() bool { return id.TenantID == "" }

// Sessions validates session tokens.  auth.Service implements it and
// returns an apperr KindAuth error for missing, unknown, or expired
// tokens.
type Sessions interface {
	CurrentUser(ctx context.Context, token string) (*meta.User, error)
}

// Resolver implements the two-step resolution described above.
type Resolver struct {
	sessions       Sessions
	hosts          *HostCache
	cookies        session.Cookies
	localhostAlias string
	log            *zap.Logger
}

// ResolverOptions carries the non-store knobs.
type ResolverOptions struct {
	Cookies        session.Cookies
	LocalhostAlias string
}

func NewResolver(sessions Sessions, hosts *HostCache, opt ResolverOptions, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		sessions:       sessions,
		hosts:          hosts,
		cookies:        opt.Cookies,
		localhostAlias: opt.LocalhostAlias,
		log:            log.Named("resolver"),
	}
}

// Resolve works from raw header values, for callers outside net/http.
func (r *Resolver) Resolve(ctx context.Context, cookieHeader, hostHeader string) (Identity, error) {
	return r.resolve(ctx, r.cookies.FromCookieHeader(cookieHeader), hostHeader)
}

// ResolveRequest also accepts an `Authorization: Bearer` session token.
func (r *Resolver) ResolveRequest(req *http.Request) (Identity, error) {
	token, _ := r.cookies.Token(req)
	return r.resolve(req.Context(), token, req.Host)
}

func (r *Resolver) resolve(ctx context.Context, token, hostHeader string) (Identity, error) {
	const op = "tenant.Resolve"

	if token != "" {
		u, err := r.sessions.CurrentUser(ctx, token)
		switch {
		case err == nil:
			metrics.IdentityResolutions.WithLabelValues(string(SourceSession)).Inc()
			return Identity{TenantID: u.ConfigID, UserID: u.ID, Source: SourceSession, User: u}, nil
		case apperr.Is(err, apperr.KindAuth):
			// Dead session: continue as if no cookie was sent.
		default:
			metrics.IdentityResolutions.WithLabelValues("error").Inc()
			return Identity{}, apperr.Upstream(op, err)
		}
	}

	if tenantID, ok, err := r.HostTenant(ctx, hostHeader); err != nil {
		metrics.IdentityResolutions.WithLabelValues("error").Inc()
		return Identity{}, apperr.Upstream(op, err)
	} else if ok {
		metrics.IdentityResolutions.WithLabelValues(string(SourceHost)).Inc()
		return Identity{TenantID: tenantID, Source: SourceHost}, nil
	}

	metrics.IdentityResolutions.WithLabelValues(string(SourceNone)).Inc()
	return Identity{Source: SourceNone}, nil
}

// HostTenant resolves a raw Host header through the cache.
func (r *Resolver) HostTenant(ctx context.Context, hostHeader string) (string, bool, error) {
	host := lookupHost(NormalizeHost(hostHeader), r.localhostAlias)
	if host == "" {
		return "", false, nil
	}
	return r.hosts.Lookup(ctx, host)
}

// Authenticate gates writes.  Unlike Resolve it never falls back to the
// hostname: a missing or dead token is an AuthError.
func (r *Resolver) Authenticate(ctx context.Context, token string) (*meta.User, error) {
	if token == "" {
		return nil, apperr.Auth("tenant.Authenticate", "")
	}
	return r.sessions.CurrentUser(ctx, token)
}
