/*
	Package tile decodes raw slide tiles and re-encodes them as JPEG at a
	requested quality, memoising encoded results in a byte-budgeted cache.
*/
package tile

import (
	"fmt"

	"github.com/coocood/freecache"

	"github.com/PABannier/WSIStreamer/wsi"
)

// Key identifies one encoded tile.
type Key struct {
	SlideID string
	Level   int
	X       uint32
	Y       uint32
	Quality int
}

func (k Key) bytes() []byte {
	return []byte(fmt.Sprintf("%s|%d|%d|%d|%d", k.SlideID, k.Level, k.X, k.Y, k.Quality))
}

// Cache holds encoded JPEG tiles under a total byte budget, evicting old
// entries under pressure.
type Cache struct {
	c *freecache.Cache
}

// NewCache returns a tile cache bounded by capacityBytes.
func NewCache(capacityBytes int) *Cache {
	if capacityBytes <= 0 {
		capacityBytes = wsi.DefaultTileCacheBytes
	}
	return &Cache{c: freecache.NewCache(capacityBytes)}
}

// Get returns the cached JPEG for a key, if present.
func (tc *Cache) Get(key Key) ([]byte, bool) {
	data, err := tc.c.Get(key.bytes())
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores an encoded tile.  Tiles too large for the cache's per-entry
// bound are served uncached.
func (tc *Cache) Put(key Key, data []byte) {
	if err := tc.c.Set(key.bytes(), data, 0); err != nil {
		wsi.Debugf("Encoded tile %v not cached: %v\n", key, err)
	}
}

// Stats returns entry count and cumulative hit / miss counts.
func (tc *Cache) Stats() (entries int64, hits, misses int64) {
	return tc.c.EntryCount(), tc.c.HitCount(), tc.c.MissCount()
}

// Clear drops all cached tiles.
func (tc *Cache) Clear() {
	tc.c.Clear()
}
