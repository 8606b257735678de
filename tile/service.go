package tile

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/PABannier/WSIStreamer/slide"
	"github.com/PABannier/WSIStreamer/wsi"
)

// Request addresses one encoded tile.
type Request struct {
	SlideID string
	Level   int
	X       uint32
	Y       uint32
	Quality int
}

// Response is an encoded tile plus response metadata.
type Response struct {
	Data     []byte
	CacheHit bool
	Quality  int
}

// Service orchestrates the read path for one tile: cache lookup, slide
// resolution, coordinate validation, raw tile read, and transcoding.
type Service struct {
	registry       *slide.Registry
	cache          *Cache
	encoder        *Encoder
	defaultQuality int

	flight singleflight.Group
}

// NewService wires a tile service over a slide registry.
func NewService(registry *slide.Registry, cacheBytes, defaultQuality int) *Service {
	if defaultQuality < 1 || defaultQuality > 100 {
		defaultQuality = wsi.DefaultJPEGQuality
	}
	return &Service{
		registry:       registry,
		cache:          NewCache(cacheBytes),
		encoder:        NewEncoder(),
		defaultQuality: defaultQuality,
	}
}

// DefaultQuality returns the quality used when a request passes 0.
func (s *Service) DefaultQuality() int {
	return s.defaultQuality
}

// Registry exposes the underlying slide registry for metadata requests.
func (s *Service) Registry() *slide.Registry {
	return s.registry
}

// CacheStats returns the tile cache counters.
func (s *Service) CacheStats() (entries, hits, misses int64) {
	return s.cache.Stats()
}

// GetTile returns the JPEG for a tile request.  A quality of 0 selects the
// server default.
func (s *Service) GetTile(ctx context.Context, req Request) (*Response, error) {
	quality := req.Quality
	if quality == 0 {
		quality = s.defaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, wsi.NewError(wsi.ErrInvalidQuality,
			"quality must be between 1 and 100, got %d", quality)
	}

	key := Key{SlideID: req.SlideID, Level: req.Level, X: req.X, Y: req.Y, Quality: quality}
	if data, ok := s.cache.Get(key); ok {
		return &Response{Data: data, CacheHit: true, Quality: quality}, nil
	}

	// Concurrent cold requests for the same tile share one read + decode, so
	// a burst of viewers panning to the same region costs one transcode.
	v, err, _ := s.flight.Do(string(key.bytes()), func() (interface{}, error) {
		if data, ok := s.cache.Get(key); ok {
			return data, nil
		}
		data, err := s.generateTile(ctx, req, quality)
		if err != nil {
			return nil, err
		}
		s.cache.Put(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Data: v.([]byte), CacheHit: false, Quality: quality}, nil
}

// generateTile runs the uncached path: resolve the slide, validate the
// coordinates, read the raw tile, and transcode it.
func (s *Service) generateTile(ctx context.Context, req Request, quality int) ([]byte, error) {
	sl, err := s.registry.Slide(ctx, req.SlideID)
	if err != nil {
		return nil, err
	}
	lvl := sl.Level(req.Level)
	if lvl == nil {
		return nil, wsi.NewError(wsi.ErrInvalidLevel,
			"level %d does not exist (slide has %d levels)", req.Level, sl.Desc.LevelCount())
	}
	if req.X >= lvl.TilesX || req.Y >= lvl.TilesY {
		return nil, wsi.NewError(wsi.ErrTileOutOfBounds,
			"tile (%d, %d) is outside the %d x %d grid of level %d",
			req.X, req.Y, lvl.TilesX, lvl.TilesY, req.Level)
	}

	raw, err := sl.ReadTile(ctx, req.Level, req.X, req.Y)
	if err != nil {
		return nil, err
	}
	return s.encoder.Transcode(raw, quality)
}
