/*
	This file implements the shared block cache.  Object bytes are cached in
	fixed-size aligned blocks keyed by (object, block index).  Concurrent
	misses of the same block are collapsed into one underlying range read, and
	transient transport errors are retried with exponential backoff before
	being surfaced.
*/

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/PABannier/WSIStreamer/wsi"
)

var (
	// initialDelay is the first retry delay after a transport error.
	initialDelay = 100 * time.Millisecond

	// maximumDelay bounds the exponential backoff; when exceeded, the
	// transport error is surfaced as a connection error.
	maximumDelay = 2 * time.Second
)

type blockKey struct {
	id  string
	idx int64
}

// BlockCache is a process-wide cache of aligned object blocks, shared by all
// slides.  Capacity is bounded either by block count or by total bytes.
// Blocks are immutable once stored.
type BlockCache struct {
	blockSize int64
	maxBytes  int64 // 0 means bounded by count instead

	mu       sync.Mutex
	cache    *lru.Cache
	curBytes int64

	flight singleflight.Group

	hits   uint64
	misses uint64
}

// NewBlockCache returns a block cache bounded by maxBlocks entries when
// maxBlocks > 0, otherwise by maxBytes of cached data.
func NewBlockCache(blockSize int64, maxBytes int64, maxBlocks int) *BlockCache {
	if blockSize <= 0 {
		blockSize = wsi.DefaultBlockSize
	}
	c := &BlockCache{
		blockSize: blockSize,
		cache:     lru.New(maxBlocks),
	}
	if maxBlocks <= 0 {
		c.maxBytes = maxBytes
	}
	c.cache.OnEvicted = func(key lru.Key, value interface{}) {
		c.curBytes -= int64(len(value.([]byte)))
	}
	return c
}

// BlockSize returns the size of an aligned cache block.
func (c *BlockCache) BlockSize() int64 {
	return c.blockSize
}

// Stats returns cumulative hit and miss counts.
func (c *BlockCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Usage returns the number of cached blocks and their total bytes.
func (c *BlockCache) Usage() (blocks int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len(), c.curBytes
}

// Wrap layers the cache over a RangeReader.  The returned reader serves the
// same ReadRange contract from cached blocks.
func (c *BlockCache) Wrap(r RangeReader) RangeReader {
	return &cachedReader{src: r, cache: c}
}

// lookup returns a cached block and records the hit or miss.
func (c *BlockCache) lookup(key blockKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.cache.Get(key); ok {
		c.hits++
		return v.([]byte), true
	}
	c.misses++
	return nil, false
}

// insert stores a fetched block, evicting LRU entries beyond the byte budget.
func (c *BlockCache) insert(key blockKey, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cache.Get(key); ok {
		return
	}
	c.cache.Add(key, data)
	c.curBytes += int64(len(data))
	if c.maxBytes > 0 {
		for c.curBytes > c.maxBytes && c.cache.Len() > 1 {
			c.cache.RemoveOldest()
		}
	}
}

// getBlock returns the bytes of one aligned block, fetching it at most once
// even under concurrent misses.
func (c *BlockCache) getBlock(ctx context.Context, src RangeReader, size, idx int64) ([]byte, error) {
	key := blockKey{id: src.ID(), idx: idx}
	if data, ok := c.lookup(key); ok {
		return data, nil
	}

	// A cancelled caller must not abort the shared fetch: the block still
	// populates the cache for future callers.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.flight.Do(fmt.Sprintf("%s#%d", key.id, key.idx), func() (interface{}, error) {
		if data, ok := c.lookup(key); ok {
			return data, nil
		}
		data, err := c.fetchBlock(fetchCtx, src, size, idx)
		if err != nil {
			return nil, err
		}
		c.insert(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, wsi.WrapError(ctx.Err(), wsi.ErrConnection, "request cancelled reading %s", src.ID())
	default:
	}
	return v.([]byte), nil
}

// fetchBlock reads one block from the object store, retrying transport
// errors with increasing delays.
func (c *BlockCache) fetchBlock(ctx context.Context, src RangeReader, size, idx int64) ([]byte, error) {
	offset := idx * c.blockSize
	length := c.blockSize
	if offset+length > size {
		length = size - offset
	}
	if length <= 0 {
		return nil, wsi.NewError(wsi.ErrIO, "block %d beyond end of %s", idx, src.ID())
	}

	delay := initialDelay
	for {
		data, err := src.ReadRange(ctx, offset, length)
		if err == nil {
			return data, nil
		}
		if !wsi.IsKind(err, wsi.ErrTransport) {
			return nil, err
		}
		if delay > maximumDelay {
			// Built directly: WrapError would keep the inner transport kind.
			return nil, &wsi.Error{
				Kind: wsi.ErrConnection,
				Msg:  fmt.Sprintf("retries exhausted reading %s", src.ID()),
				Err:  err,
			}
		}
		wsi.Warningf("Transport error reading block %d of %s (retrying in %s): %v\n", idx, src.ID(), delay, err)
		time.Sleep(delay)
		delay *= 2
	}
}

// cachedReader is a RangeReader served from the shared block cache.
type cachedReader struct {
	src   RangeReader
	cache *BlockCache
}

func (r *cachedReader) ID() string {
	return r.src.ID()
}

func (r *cachedReader) Size(ctx context.Context) (int64, error) {
	return r.src.Size(ctx)
}

func (r *cachedReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, wsi.NewError(wsi.ErrIO, "non-positive range length %d for %s", length, r.src.ID())
	}
	size, err := r.src.Size(ctx)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset+length > size {
		return nil, wsi.NewError(wsi.ErrIO,
			"range out of bounds: requested %d bytes at offset %d, object size is %d", length, offset, size)
	}

	bs := r.cache.blockSize
	first := offset / bs
	last := (offset + length - 1) / bs

	if first == last {
		block, err := r.cache.getBlock(ctx, r.src, size, first)
		if err != nil {
			return nil, err
		}
		within := offset - first*bs
		return block[within : within+length], nil
	}

	out := make([]byte, 0, length)
	pos := offset
	remaining := length
	for idx := first; idx <= last; idx++ {
		block, err := r.cache.getBlock(ctx, r.src, size, idx)
		if err != nil {
			return nil, err
		}
		within := pos - idx*bs
		n := int64(len(block)) - within
		if n > remaining {
			n = remaining
		}
		out = append(out, block[within:within+n]...)
		pos += n
		remaining -= n
	}
	return out, nil
}
