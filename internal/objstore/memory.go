package objstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is a mutex-guarded map Store.  Returned objects are copies, so
// callers may mutate them freely.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]Object
	now  func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objs: make(map[string]Object), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) (*Object, error) {
	m.mu.RLock()
	o, ok := m.objs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	o.Data = append([]byte(nil), o.Data...)
	return &o, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	m.objs[key] = Object{
		Key:          key,
		Data:         append([]byte(nil), data...),
		ContentType:  contentType,
		LastModified: m.now().UTC(),
	}
	m.mu.Unlock()
	return nil
}

// List returns matches sorted by key, the same order S3 uses.
func (m *Memory) List(_ context.Context, prefix string) ([]Info, error) {
	m.mu.RLock()
	var out []Info
	for k, o := range m.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, Info{Key: k, Size: int64(len(o.Data)), LastModified: o.LastModified})
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
