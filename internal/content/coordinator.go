// internal/content/coordinator.go
//
// SaveCoordinator: the write path.
//
// Context
// -------
// A bundle carries fragments (name → JSON) and assets (relative path →
// bytes + optional content type).  After the authorization gate and a
// validation pass over the whole bundle, every key is written
// concurrently and independently.
//
// Consistency
// -----------
// The object store has no multi-key transaction, so a save is at least
// once per key and never atomic across keys.  If key 2 of 3 fails, keys 1
// and 3 stay written.  The result lists every key with its own outcome so
// the caller can retry exactly what failed; retrying a whole bundle is
// always safe because each write is a full overwrite.
//
// Notes
// -----
//   - Authorization and validation failures happen before any write.
//   - Per-key error strings are generic.  Causes go to the log.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/siteconf/internal/apperr"
	"github.com/yanizio/siteconf/internal/asset"
	"github.com/yanizio/siteconf/internal/meta"
	"github.com/yanizio/siteconf/internal/metrics"
	"github.com/yanizio/siteconf/internal/objstore"
)

// Key kinds reported in KeyResult.
const (
	KindFragment = "fragment"
	KindAsset    = "asset"
)

// AssetUpload is one asset in a Bundle.  Data is base64 in JSON.
type AssetUpload struct {
	Data        []byte `json:"data"`
	ContentType string `json:"contentType,omitempty"`
}

// Bundle is one save request.
type Bundle struct {
	Fragments map[string]json.RawMessage `json:"fragments,omitempty"`
	Assets    map[string]AssetUpload     `json:"assets,omitempty"`
}

// KeyResult is the outcome of one write.
type KeyResult struct {
	Key   string `json:"key"`
	Kind  string `json:"kind"`
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// SaveResult lists every key of the bundle.  Success is true only when
// every key succeeded.
type SaveResult struct {
	Success bool        `json:"success"`
	Results []KeyResult `json:"results"`
}

// Failed returns the results that did not succeed.
func (r *SaveResult) Failed() []KeyResult {
	var out []KeyResult
	for _, k := range r.Results {
		if !k.OK {
			out = append(out, k)
		}
	}
	return out
}

// Coordinator persists bundles.
type Coordinator struct {
	store objstore.Store
	log   *zap.Logger
}

func NewCoordinator(store objstore.Store, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: store, log: log.Named("coordinator")}
}

// write is one planned object-store Put.
type write struct {
	res         KeyResult
	data        []byte
	contentType string
}

// Save writes b for tenantID on behalf of user.
//
// The returned error is nil when every key succeeded, a KindPartial error
// when some failed, and a KindUpstream error when all failed.  In the last
// two cases the result is still returned.
func (c *Coordinator) Save(ctx context.Context, user *meta.User, tenantID string, b Bundle) (*SaveResult, error) {
	const op = "content.Save"

	if user == nil {
		return nil, apperr.Auth(op, "")
	}
	// Admins pass CanEdit for any id, so the shape check comes first.
	if !meta.ValidConfigID(tenantID) {
		return nil, apperr.Validation(op, "invalid tenant id")
	}
	if !user.CanEdit(tenantID) {
		return nil, apperr.Auth(op, "not allowed to edit this site")
	}

	plan, err := c.plan(op, tenantID, b)
	if err != nil {
		return nil, err
	}

	var g errgroup.Group
	for i := range plan {
		w := &plan[i]
		g.Go(func() error {
			if err := c.store.Put(ctx, w.res.Key, w.data, w.contentType); err != nil {
				w.res.Error = "write failed"
				c.log.Error("save key failed",
					zap.String("tenant", tenantID),
					zap.String("key", w.res.Key),
					zap.Int64("user_id", user.ID),
					zap.Error(err),
				)
				return nil
			}
			w.res.OK = true
			return nil
		})
	}
	_ = g.Wait() // writes never cancel each other

	res := &SaveResult{Results: make([]KeyResult, len(plan))}
	failed := 0
	for i, w := range plan {
		res.Results[i] = w.res
		if w.res.OK {
			metrics.SaveKeys.WithLabelValues("ok").Inc()
		} else {
			failed++
			metrics.SaveKeys.WithLabelValues("failed").Inc()
		}
	}
	res.Success = failed == 0

	c.log.Info("bundle saved",
		zap.String("tenant", tenantID),
		zap.Int64("user_id", user.ID),
		zap.Int("keys", len(plan)),
		zap.Int("failed", failed),
	)

	switch {
	case failed == 0:
		return res, nil
	case failed == len(plan):
		return res, &apperr.Error{Kind: apperr.KindUpstream, Op: op, Msg: "all writes failed"}
	}
	return res, &apperr.Error{Kind: apperr.KindPartial, Op: op,
		Msg: fmt.Sprintf("%d of %d writes failed", failed, len(plan))}
}

// plan validates the whole bundle and orders writes: fragments in the
// fixed list order, then assets by path.
func (c *Coordinator) plan(op, tenantID string, b Bundle) ([]write, error) {
	if len(b.Fragments) == 0 && len(b.Assets) == 0 {
		return nil, apperr.Validation(op, "nothing to save")
	}

	var plan []write
	for name := range b.Fragments {
		if !Known(name) {
			return nil, apperr.Validation(op, fmt.Sprintf("unknown fragment %q", name))
		}
	}
	for _, name := range Fragments {
		raw, ok := b.Fragments[name]
		if !ok {
			continue
		}
		var buf bytes.Buffer
		if len(raw) == 0 {
			raw = json.RawMessage("null")
		}
		if err := json.Compact(&buf, raw); err != nil {
			return nil, apperr.Validation(op, fmt.Sprintf("fragment %q is not valid JSON", name))
		}
		plan = append(plan, write{
			res:         KeyResult{Key: FragmentKey(tenantID, name), Kind: KindFragment, Name: name},
			data:        buf.Bytes(),
			contentType: "application/json",
		})
	}

	paths := make([]string, 0, len(b.Assets))
	for p := range b.Assets {
		if _, err := asset.CleanPath(p); err != nil {
			return nil, apperr.Validation(op, fmt.Sprintf("invalid asset path %q", p))
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		up := b.Assets[p]
		plan = append(plan, write{
			res:         KeyResult{Key: asset.Key(tenantID, p), Kind: KindAsset, Name: p},
			data:        up.Data,
			contentType: asset.InferType(p, up.ContentType, up.Data),
		})
	}
	return plan, nil
}
