/*
	This file implements the slide registry: a bounded LRU of opened slides
	keyed by slide id.  Concurrent first requests for the same slide collapse
	into a single open, the same way the block cache collapses fetches.
*/

package slide

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/singleflight"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/wsi"
)

// Source creates range readers for slide ids.  The storage.Store is the
// production implementation; tests substitute in-memory sources.
type Source interface {
	// OpenObject returns an uncached reader for the object backing a slide
	// id, without checking existence.
	OpenObject(slideID string) storage.RangeReader
}

// StoreSource adapts a storage.Store to the Source interface.
type StoreSource struct {
	Store *storage.Store
}

func (s StoreSource) OpenObject(slideID string) storage.RangeReader {
	return s.Store.ObjectReader(slideID)
}

// Registry is the bounded cache of opened slides.
type Registry struct {
	source Source
	blocks *storage.BlockCache

	mu    sync.Mutex
	cache *lru.Cache

	flight singleflight.Group
}

// NewRegistry returns a registry holding up to capacity open slides, reading
// all slide bytes through the shared block cache.
func NewRegistry(source Source, blocks *storage.BlockCache, capacity int) *Registry {
	if capacity <= 0 {
		capacity = wsi.DefaultSlideRegistryCapacity
	}
	return &Registry{
		source: source,
		blocks: blocks,
		cache:  lru.New(capacity),
	}
}

// Slide returns the opened slide for an id, opening and caching it on first
// request.  Concurrent misses for the same id share one open; a failed open
// is not cached, so later requests retry.
func (g *Registry) Slide(ctx context.Context, id string) (*Slide, error) {
	g.mu.Lock()
	if v, ok := g.cache.Get(id); ok {
		g.mu.Unlock()
		return v.(*Slide), nil
	}
	g.mu.Unlock()

	// Openers must survive caller cancellation so the slide still lands in
	// the registry for concurrent and future requests.
	openCtx := context.WithoutCancel(ctx)
	v, err, _ := g.flight.Do(id, func() (interface{}, error) {
		g.mu.Lock()
		if v, ok := g.cache.Get(id); ok {
			g.mu.Unlock()
			return v.(*Slide), nil
		}
		g.mu.Unlock()

		reader := g.blocks.Wrap(g.source.OpenObject(id))
		desc, err := Open(openCtx, id, reader)
		if err != nil {
			return nil, err
		}
		s := NewSlide(desc, reader)

		g.mu.Lock()
		g.cache.Add(id, s)
		g.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Slide), nil
}

// Len returns the number of slides currently held.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Len()
}

// Evict drops a slide from the registry, e.g. after the backing object is
// replaced.  Cached blocks keyed by the object id are unaffected.
func (g *Registry) Evict(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache.Remove(id)
}
