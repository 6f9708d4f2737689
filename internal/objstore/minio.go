// internal/objstore/minio.go
//
// S3-compatible ObjectStore backed by minio-go.
//
// Context
// -------
// All tenants share one bucket; isolation comes from the key prefix.  The
// bucket is created on startup when missing so a fresh MinIO container works
// without manual setup.
//
// Notes
// -----
//   - Get reads the whole object into memory.  Fragments are small JSON
//     documents and assets are marketing images, so this is acceptable.
//   - "NoSuchKey" from the server maps to ErrNotFound.
package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BucketOptions configures NewBucket.
type BucketOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
}

// Bucket implements Store on one S3 bucket.
type Bucket struct {
	client *minio.Client
	bucket string
}

var _ Store = (*Bucket)(nil)

// NewBucket connects and ensures the bucket exists.
func NewBucket(ctx context.Context, opt BucketOptions) (*Bucket, error) {
	client, err := minio.New(opt.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: opt.UseSSL,
		Region: opt.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: client: %w", err)
	}
	b := &Bucket{client: client, bucket: opt.Bucket}
	if err := b.ensureBucket(ctx, opt.Region); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bucket) ensureBucket(ctx context.Context, region string) error {
	found, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("objstore: bucket exists %s: %w", b.bucket, err)
	}
	if found {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("objstore: make bucket %s: %w", b.bucket, err)
	}
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces NoSuchKey before we read.
	st, err := obj.Stat()
	if err != nil {
		return nil, translate(err)
	}
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(err)
	}
	return &Object{
		Key:          key,
		Data:         data,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
	}, nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (b *Bucket) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	for oi := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if oi.Err != nil {
			return nil, oi.Err
		}
		out = append(out, Info{Key: oi.Key, Size: oi.Size, LastModified: oi.LastModified})
	}
	return out, nil
}

func translate(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}
