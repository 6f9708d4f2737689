// internal/content/composer.go
//
// ConfigComposer: the read path.
//
// Context
// -------
// One call fans out a Get per known fragment and, in parallel, a List of
// the tenant's asset folder followed by a Get per listed asset.  Every
// branch joins before the document is built.
//
// Failure isolation
// -----------------
//   - A missing fragment is null.
//   - A fragment that is not valid JSON is logged and null.
//   - A store error on a fragment is logged and null.
//   - A failed listing or a failed single asset is logged and omitted.
//
// Only an empty tenant id fails the whole call.  No branch cancels
// another, so the slowest fetch sets the latency.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/asset"
	"github.com/yanizio/siteconf/internal/metrics"
	"github.com/yanizio/siteconf/internal/objstore"
)

// assetFetchLimit bounds concurrent asset Gets per composition.
const assetFetchLimit = 16

// AssetBlob is one asset inside a Composition.  Data is base64 in JSON.
type AssetBlob struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType"`
}

// Composition is the assembled tenant document.
type Composition struct {
	TenantID  string
	Fragments map[string]json.RawMessage // nil value means null
	Assets    map[string]AssetBlob
}

// MarshalJSON flattens fragments into top-level fields so the wire shape
// is {"success":true,"combined_data":...,"assets":{...}}.
func (c *Composition) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(Fragments)+2)
	out["success"] = true
	for _, name := range Fragments {
		if doc := c.Fragments[name]; doc != nil {
			out[name] = doc
		} else {
			out[name] = nil
		}
	}
	assets := c.Assets
	if assets == nil {
		assets = map[string]AssetBlob{}
	}
	out["assets"] = assets
	return json.Marshal(out)
}

// Composer builds Compositions from an ObjectStore.
type Composer struct {
	store objstore.Store
	log   *zap.Logger
}

func NewComposer(store objstore.Store, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{store: store, log: log.Named("composer")}
}

// fragmentResult is the per-branch outcome before it collapses to a value
// or null.
type fragmentResult struct {
	doc    json.RawMessage
	reason string // "", "absent", "invalid_json", "upstream"
	err    error
}

// Compose assembles tenantID's fragments and assets.
func (c *Composer) Compose(ctx context.Context, tenantID string) (*Composition, error) {
	if tenantID == "" {
		return nil, apperr.NotFound("content.Compose", "tenant not resolved")
	}
	start := time.Now()
	defer func() { metrics.ComposeDuration.Observe(time.Since(start).Seconds()) }()

	results := make([]fragmentResult, len(Fragments))
	var assets map[string]AssetBlob

	var g errgroup.Group
	for i, name := range Fragments {
		i, name := i, name
		g.Go(func() error {
			results[i] = c.fetchFragment(ctx, tenantID, name)
			return nil
		})
	}
	g.Go(func() error {
		assets = c.fetchAssets(ctx, tenantID)
		return nil
	})
	_ = g.Wait() // branches never return errors

	comp := &Composition{
		TenantID:  tenantID,
		Fragments: make(map[string]json.RawMessage, len(Fragments)),
		Assets:    assets,
	}
	for i, name := range Fragments {
		r := results[i]
		comp.Fragments[name] = r.doc
		switch r.reason {
		case "", "absent":
		default:
			metrics.FragmentFetchFailures.WithLabelValues(r.reason).Inc()
			c.log.Warn("fragment collapsed to null",
				zap.String("tenant", tenantID),
				zap.String("fragment", name),
				zap.String("reason", r.reason),
				zap.Error(r.err),
			)
		}
	}
	return comp, nil
}

func (c *Composer) fetchFragment(ctx context.Context, tenantID, name string) fragmentResult {
	obj, err := c.store.Get(ctx, FragmentKey(tenantID, name))
	switch {
	case errors.Is(err, objstore.ErrNotFound):
		return fragmentResult{reason: "absent"}
	case err != nil:
		return fragmentResult{reason: "upstream", err: err}
	case !json.Valid(obj.Data):
		return fragmentResult{reason: "invalid_json", err: errors.New("stored fragment is not JSON")}
	}
	return fragmentResult{doc: json.RawMessage(obj.Data)}
}

func (c *Composer) fetchAssets(ctx context.Context, tenantID string) map[string]AssetBlob {
	prefix := asset.Prefix(tenantID)
	out := map[string]AssetBlob{}

	list, err := c.store.List(ctx, prefix)
	if err != nil {
		metrics.FragmentFetchFailures.WithLabelValues("asset_list").Inc()
		c.log.Warn("asset listing failed", zap.String("tenant", tenantID), zap.Error(err))
		return out
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(assetFetchLimit)
	for _, info := range list {
		info := info
		rel := strings.TrimPrefix(info.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue // folder placeholder
		}
		g.Go(func() error {
			obj, err := c.store.Get(ctx, info.Key)
			if err != nil {
				metrics.FragmentFetchFailures.WithLabelValues("asset").Inc()
				c.log.Warn("asset fetch failed", zap.String("tenant", tenantID),
					zap.String("path", rel), zap.Error(err))
				return nil
			}
			blob := AssetBlob{Data: obj.Data, ContentType: asset.ResponseType(rel, obj.ContentType)}
			mu.Lock()
			out[rel] = blob
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
