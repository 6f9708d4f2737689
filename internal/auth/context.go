// internal/auth/context.go
//
// Authenticated-user helpers for request contexts.
//
// Usage
// -----
//     // The HTTP save gate attaches the user after Authenticate succeeds.
//     ctx = auth.WithUser(ctx, u)
//
//     // Handlers read it back.
//     u, ok := auth.UserFrom(ctx)
//
// Notes
// -----
// • Only gated routes carry a user.  Read routes use tenant.Identity.
package auth

import (
	"context"

	"github.com/yanizio/siteconf/internal/meta"
)

// userKey is unexported to avoid context-key collisions.
type userKey struct{}

// WithUser returns a new context carrying u.
func WithUser(ctx context.Context, u *meta.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by WithUser.  ok is false when none is
// set.
func UserFrom(ctx context.Context) (*meta.User, bool) {
	u, ok := ctx.Value(userKey{}).(*meta.User)
	return u, ok && u != nil
}
