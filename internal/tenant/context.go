package tenant

import "context"

type identityKey struct{}

// WithIdentity attaches id to ctx.  The HTTP layer resolves once per
// request and handlers read it back with FromContext.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
