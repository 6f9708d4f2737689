// internal/tenant/entry.go
//
// Host cache entry.
//
// Context
// -------
// The cache stores one entry per normalized hostname that resolved to a
// tenant.  `loadedAt` bounds how long the mapping is trusted; `lastSeen`
// orders entries for LRU eviction.  Both are UnixNano so the hot path only
// needs atomic loads and stores.
//
// Notes
// -----
//   - Misses are never stored.  A hostname registered after a miss is
//     picked up on the very next request.
package tenant

import "sync/atomic"

type entry struct {
	tenantID string
	loadedAt int64 // UnixNano
	lastSeen atomic.Int64
}

func newEntry(tenantID string, now int64) *entry {
	e := &entry{tenantID: tenantID, loadedAt: now}
	e.lastSeen.Store(now)
	return e
}

func (e *entry) fresh(now int64, ttlNanos int64) bool {
	return now-e.loadedAt < ttlNanos
}
