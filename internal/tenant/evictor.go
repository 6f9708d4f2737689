// evictor.go houses the eviction loop for HostCache.  Every interval it
// scans the map and removes:
//
//   - hosts whose mapping is older than the TTL
//   - least-recently-used hosts when the map exceeds maxEntries
//
// Each eviction updates Prometheus counters.  Expired entries are also
// ignored by Lookup, so the loop only bounds memory.
package tenant

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/metrics"
)

// Run evicts until Close is called.  It returns immediately when caching
// is disabled.
func (c *HostCache) Run() {
	if !c.Enabled() {
		return
	}
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.evictOnce(c.now())
		}
	}
}

func (c *HostCache) evictOnce(at time.Time) (expired, pressured int) {
	now := at.UnixNano()
	var count int

	// ----------------------------------------------------------------
	// TTL pass
	// ----------------------------------------------------------------
	c.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		if !ent.fresh(now, int64(c.ttl)) {
			if c.m.CompareAndDelete(key, ent) {
				expired++
				metrics.HostEvictTotal.Inc()
				metrics.HostCacheEntries.Dec()
			}
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU pass
	// ----------------------------------------------------------------
	if count > c.maxEntries {
		type kv struct {
			key string
			ent *entry
			at  int64
		}
		all := make([]kv, 0, count)
		c.m.Range(func(key, value any) bool {
			ent := value.(*entry)
			all = append(all, kv{key: key.(string), ent: ent, at: ent.lastSeen.Load()})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-c.maxEntries; i++ {
			if c.m.CompareAndDelete(all[i].key, all[i].ent) {
				pressured++
				metrics.HostEvictTotal.Inc()
				metrics.HostCacheEntries.Dec()
			}
		}
	}

	if expired+pressured > 0 {
		c.log.Debug("host cache evicted",
			zap.Int("expired", expired),
			zap.Int("lru", pressured),
		)
	}
	return expired, pressured
}
