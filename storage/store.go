/*
	This file opens the slide bucket through the gocloud.dev blob portability
	layer, so the same code path serves AWS S3, S3-compatible endpoints like
	MinIO, and local directories (file://) for development and testing.
*/

package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/PABannier/WSIStreamer/wsi"
)

// Store is an opened slide bucket.
type Store struct {
	bucket *blob.Bucket
	url    string
	prefix string
}

// OpenStore opens the bucket given by a gocloud URL such as
// "s3://my-slides?region=us-east-1".  The optional prefix scopes all keys.
func OpenStore(ctx context.Context, urlstr, prefix string) (*Store, error) {
	bucket, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, fmt.Errorf("unable to open bucket %q: %v", urlstr, err)
	}
	wsi.Infof("Opened slide bucket %q\n", urlstr)
	return &Store{bucket: bucket, url: urlstr, prefix: prefix}, nil
}

// NewStoreFromBucket wraps an already-opened bucket.  Used by tests with
// in-memory buckets.
func NewStoreFromBucket(bucket *blob.Bucket, url, prefix string) *Store {
	return &Store{bucket: bucket, url: url, prefix: prefix}
}

func (s *Store) Close() {
	if err := s.bucket.Close(); err != nil {
		wsi.Errorf("Error on trying to close slide bucket (%s): %v\n", s.url, err)
	}
}

func (s *Store) String() string {
	return fmt.Sprintf("slide bucket @ %s", s.url)
}

// ObjectReader returns a RangeReader for one object.  The object's existence
// is not checked until the first Size or ReadRange call.
func (s *Store) ObjectReader(key string) RangeReader {
	return &objectReader{
		store: s,
		key:   s.prefix + key,
		id:    s.url + "/" + s.prefix + key,
		size:  -1,
	}
}

// List returns the objects under the store's prefix.  Directory placeholders
// are skipped.
func (s *Store) List(ctx context.Context) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	it := s.bucket.List(&blob.ListOptions{Prefix: s.prefix})
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classifyStoreErr(err, s.url)
		}
		if obj.IsDir {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:  strings.TrimPrefix(obj.Key, s.prefix),
			Size: obj.Size,
		})
	}
	return objects, nil
}

// objectReader implements RangeReader for one object of a Store.
type objectReader struct {
	store *Store
	key   string
	id    string

	mu   sync.Mutex
	size int64 // -1 until resolved
}

func (r *objectReader) ID() string {
	return r.id
}

// Size resolves the object size with a HEAD-equivalent attribute fetch on
// first call and caches it.
func (r *objectReader) Size(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size >= 0 {
		return r.size, nil
	}
	attrs, err := r.store.bucket.Attributes(ctx, r.key)
	if err != nil {
		return 0, classifyStoreErr(err, r.id)
	}
	r.size = attrs.Size
	return r.size, nil
}

func (r *objectReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, wsi.NewError(wsi.ErrIO, "non-positive range length %d for %s", length, r.id)
	}
	size, err := r.Size(ctx)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset+length > size {
		return nil, wsi.NewError(wsi.ErrIO,
			"range out of bounds: requested %d bytes at offset %d, object size is %d", length, offset, size)
	}
	rd, err := r.store.bucket.NewRangeReader(ctx, r.key, offset, length, nil)
	if err != nil {
		return nil, classifyStoreErr(err, r.id)
	}
	defer rd.Close()
	data := make([]byte, length)
	if _, err := io.ReadFull(rd, data); err != nil {
		return nil, wsi.WrapError(err, wsi.ErrTransport, "short range read of %s", r.id)
	}
	return data, nil
}

// classifyStoreErr maps bucket errors onto the error taxonomy.  NotFound is
// terminal; most other store failures are treated as retryable transport
// errors, since the block cache owns the retry policy.
func classifyStoreErr(err error, id string) error {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return wsi.NewError(wsi.ErrNotFound, "object not found: %s", id)
	case gcerrors.PermissionDenied, gcerrors.InvalidArgument, gcerrors.Unimplemented:
		return wsi.WrapError(err, wsi.ErrIO, "object store error for %s", id)
	default:
		return wsi.WrapError(err, wsi.ErrTransport, "transport error for %s", id)
	}
}
