package asset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/objstore"
	"github.com/yanizio/siteconf/internal/tenant"
)

func seeded(t *testing.T) *objstore.Memory {
	t.Helper()
	m := objstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Put(ctx, "acme/assets/img/logo.png", []byte{0x89, 'P', 'N', 'G'}, ""))
	require.NoError(t, m.Put(ctx, "acme/assets/brochure.bin", []byte{1, 2}, "application/octet-stream"))
	require.NoError(t, m.Put(ctx, "beta/assets/hero.jpg", []byte{0xff, 0xd8}, "image/jpeg"))
	return m
}

func TestGet_VersionedIsImmutable(t *testing.T) {
	r := NewResolver(seeded(t), nil)
	id := tenant.Identity{TenantID: "acme", Source: tenant.SourceHost}

	a1, err := r.Get(context.Background(), "img/logo.png", "abc", id)
	require.NoError(t, err)
	a2, err := r.Get(context.Background(), "img/logo.png", "abc", id)
	require.NoError(t, err)

	assert.Equal(t, `"abc"`, a1.ETag)
	assert.Equal(t, a1.ETag, a2.ETag)
	assert.Equal(t, "public, max-age=31536000, immutable", a1.CacheControl)
	assert.Equal(t, "image/png", a1.ContentType)
}

func TestGet_UnversionedRevalidates(t *testing.T) {
	r := NewResolver(seeded(t), nil)
	a, err := r.Get(context.Background(), "/img/logo.png", "", tenant.Identity{TenantID: "acme"})
	require.NoError(t, err)

	assert.Equal(t, "public, max-age=60, must-revalidate", a.CacheControl)
	assert.Regexp(t, `^"\d+"$`, a.ETag)
	assert.True(t, a.Matches(a.ETag))
	assert.True(t, a.Matches(`"x", W/`+a.ETag))
	assert.False(t, a.Matches(`"other"`))
}

func TestGet_TenantFallback(t *testing.T) {
	r := NewResolver(seeded(t), nil)
	ctx := context.Background()

	// Explicit tenant wins over the caller's identity.
	a, err := r.Get(ctx, "beta/assets/hero.jpg", "", tenant.Identity{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "beta", a.TenantID)
	assert.Equal(t, "hero.jpg", a.Path)

	_, err = r.Get(ctx, "img/logo.png", "", tenant.Identity{Source: tenant.SourceNone})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = r.Get(ctx, "img/missing.png", "", tenant.Identity{TenantID: "acme"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = r.Get(ctx, "../beta/assets/hero.jpg", "", tenant.Identity{TenantID: "acme"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGet_GenericStoredTypeFallsBack(t *testing.T) {
	r := NewResolver(seeded(t), nil)
	a, err := r.Get(context.Background(), "brochure.bin", "", tenant.Identity{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", a.ContentType)
}

type brokenStore struct{ objstore.Store }

func (brokenStore) Get(context.Context, string) (*objstore.Object, error) {
	return nil, errors.New("s3 timeout")
}

func TestGet_UpstreamFailure(t *testing.T) {
	r := NewResolver(brokenStore{}, nil)
	_, err := r.Get(context.Background(), "x.png", "", tenant.Identity{TenantID: "acme"})
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestCleanPath(t *testing.T) {
	for _, ok := range []string{"logo.png", "img/hero.jpg", "a/b/c.svg"} {
		got, err := CleanPath(ok)
		require.NoError(t, err, ok)
		assert.Equal(t, ok, got)
	}
	for _, bad := range []string{"", "/abs.png", "../x", "a/../b", "a//b", "./a", "a/", `a\b`} {
		_, err := CleanPath(bad)
		assert.ErrorIs(t, err, ErrBadPath, bad)
	}
}

func TestTypes(t *testing.T) {
	assert.Equal(t, "image/webp", ResponseType("x.WEBP", ""))
	assert.Equal(t, "text/x-custom", ResponseType("x.png", "text/x-custom"))
	assert.Equal(t, "application/octet-stream", ResponseType("x.unknown", ""))

	assert.Equal(t, "image/svg+xml", InferType("icon.svg", "", nil))
	assert.Equal(t, "image/png", InferType("blob", "", []byte("\x89PNG\r\n\x1a\n0000")))
	assert.Equal(t, "application/octet-stream", InferType("blob", "", nil))
}
