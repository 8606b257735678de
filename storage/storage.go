/*
	Package storage provides range-addressed access to slide objects in
	S3-compatible object storage, plus the shared block cache that sits in
	front of it.  All parsing layers above read through the RangeReader
	interface and never download whole objects.
*/
package storage

import "context"

// RangeReader reads byte ranges of a single remote object.  Implementations
// must be safe for concurrent use.
type RangeReader interface {
	// ReadRange returns exactly length bytes starting at offset, or an error.
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)

	// Size returns the total object size in bytes.  It may be resolved
	// lazily on first call.
	Size(ctx context.Context) (int64, error)

	// ID identifies the backing object, e.g. "s3://bucket/key".
	ID() string
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key  string
	Size int64
}
