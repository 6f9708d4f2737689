// Package objstore defines the ObjectStore contract: a flat key/value blob
// store addressed by hierarchical string keys.  Two implementations ship:
// Bucket (S3-compatible, minio-go) for production and Memory for tests and
// local development.
//
// Key convention, owned by callers:
//
//	<tenant>/<fragment>          JSON fragments
//	<tenant>/assets/<relative>   binary assets
package objstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("objstore: object not found")

// Object is one stored blob plus its metadata.
type Object struct {
	Key          string
	Data         []byte
	ContentType  string
	LastModified time.Time
}

// Info is the listing view of an object; Data is not fetched.
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store is the ObjectStore contract.
type Store interface {
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// List returns every object whose key starts with prefix, recursively.
	List(ctx context.Context, prefix string) ([]Info, error)
}
