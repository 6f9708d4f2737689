package asset

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/objstore"
	"github.com/yanizio/siteconf/internal/tenant"
)

// Cache-Control values.  Versioned URLs are content addressed, so they
// never change; unversioned URLs must be revalidated quickly.
const (
	CacheImmutable  = "public, max-age=31536000, immutable"
	CacheRevalidate = "public, max-age=60, must-revalidate"
)

// Asset is one resolved object plus the headers to serve it with.
type Asset struct {
	TenantID     string
	Path         string // relative to the tenant's asset folder
	Data         []byte
	ContentType  string
	CacheControl string
	ETag         string // quoted
	LastModified time.Time
}

// Resolver serves single assets.
type Resolver struct {
	store objstore.Store
	log   *zap.Logger
}

func NewResolver(store objstore.Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, log: log.Named("asset")}
}

// Get resolves logicalPath for the caller.  The tenant comes from, in
// order: an explicit `<tenant>/assets/<rel>` path, then the caller's
// identity (session before host, as decided by tenant.Resolver).
func (r *Resolver) Get(ctx context.Context, logicalPath, version string, id tenant.Identity) (*Asset, error) {
	const op = "asset.Get"

	logical := strings.TrimPrefix(logicalPath, "/")
	tenantID, rel, explicit := splitExplicit(logical)
	if !explicit {
		tenantID, rel = id.TenantID, logical
	}
	if tenantID == "" {
		return nil, apperr.NotFound(op, "tenant not resolved")
	}
	rel, err := CleanPath(rel)
	if err != nil {
		return nil, apperr.NotFound(op, "asset not found")
	}

	obj, err := r.store.Get(ctx, Key(tenantID, rel))
	switch {
	case errors.Is(err, objstore.ErrNotFound):
		return nil, apperr.NotFound(op, "asset not found")
	case err != nil:
		r.log.Warn("asset fetch failed", zap.String("tenant", tenantID), zap.String("path", rel), zap.Error(err))
		return nil, apperr.Upstream(op, err)
	}

	a := &Asset{
		TenantID:     tenantID,
		Path:         rel,
		Data:         obj.Data,
		ContentType:  ResponseType(rel, obj.ContentType),
		LastModified: obj.LastModified,
	}
	if version != "" {
		a.CacheControl = CacheImmutable
		a.ETag = strconv.Quote(version)
	} else {
		a.CacheControl = CacheRevalidate
		a.ETag = `"` + strconv.FormatInt(obj.LastModified.UnixNano(), 10) + `"`
	}
	return a, nil
}

// Matches reports whether an If-None-Match header value names a's ETag.
func (a *Asset) Matches(ifNoneMatch string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
		if tag == "*" || tag == a.ETag {
			return true
		}
	}
	return false
}
