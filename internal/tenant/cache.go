package tenant

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/metrics"
)

// Static defaults used when CacheOptions leaves a field zero.
const (
	DefaultMaxEntries    = 1000
	DefaultEvictInterval = 5 * time.Minute
)

// CacheOptions tunes HostCache.  TTL == 0 disables caching entirely.
type CacheOptions struct {
	TTL           time.Duration
	MaxEntries    int
	EvictInterval time.Duration
}

// HostCache maps normalized hostnames to tenant ids.  It loads lazily from
// the domains table, collapses concurrent misses with singleflight, and
// evicts on TTL or LRU pressure.
type HostCache struct {
	store      meta.Store
	sfg        singleflight.Group
	m          sync.Map // host → *entry
	ttl        time.Duration
	maxEntries int
	interval   time.Duration
	log        *zap.Logger
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewHostCache constructs a cache.  Call Run to start the evictor.
func NewHostCache(store meta.Store, opt CacheOptions, log *zap.Logger) *HostCache {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.MaxEntries <= 0 {
		opt.MaxEntries = DefaultMaxEntries
	}
	if opt.EvictInterval <= 0 {
		opt.EvictInterval = DefaultEvictInterval
	}
	return &HostCache{
		store:      store,
		ttl:        opt.TTL,
		maxEntries: opt.MaxEntries,
		interval:   opt.EvictInterval,
		log:        log.Named("hostcache"),
		now:        time.Now,
		stop:       make(chan struct{}),
	}
}

// Enabled reports whether lookups are cached at all.
func (c *HostCache) Enabled() bool { return c.ttl > 0 }

// Lookup returns the tenant id for host.  ok is false when no domain row
// exists.  err is non-nil only when the metadata store fails.
func (c *HostCache) Lookup(ctx context.Context, host string) (tenantID string, ok bool, err error) {
	if !c.Enabled() {
		return c.load(ctx, host)
	}

	now := c.now().UnixNano()
	if v, hit := c.m.Load(host); hit {
		ent := v.(*entry)
		if ent.fresh(now, int64(c.ttl)) {
			ent.lastSeen.Store(now)
			return ent.tenantID, true, nil
		}
	}

	type result struct {
		id string
		ok bool
	}
	v, err, _ := c.sfg.Do(host, func() (any, error) {
		// Double-check after the singleflight barrier.
		if v, hit := c.m.Load(host); hit {
			ent := v.(*entry)
			if ent.fresh(c.now().UnixNano(), int64(c.ttl)) {
				return result{ent.tenantID, true}, nil
			}
		}
		// The first caller's cancellation must not fail the others.
		id, found, err := c.load(context.WithoutCancel(ctx), host)
		if err != nil || !found {
			return result{}, err
		}
		if _, replaced := c.m.Swap(host, newEntry(id, c.now().UnixNano())); !replaced {
			metrics.HostCacheEntries.Inc()
		}
		return result{id, true}, nil
	})
	if err != nil {
		return "", false, err
	}
	r := v.(result)
	return r.id, r.ok, nil
}

func (c *HostCache) load(ctx context.Context, host string) (string, bool, error) {
	d, err := c.store.DomainByName(ctx, host)
	switch {
	case errors.Is(err, meta.ErrNotFound):
		return "", false, nil
	case err != nil:
		metrics.HostLoadErrorsTotal.Inc()
		c.log.Warn("domain lookup failed", zap.String("host", host), zap.Error(err))
		return "", false, err
	}
	metrics.HostLoadTotal.Inc()
	return d.ConfigID, true, nil
}

// Len counts cached hosts.
func (c *HostCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Close stops the evictor.  Safe to call more than once.
func (c *HostCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}
