package slide

import (
	"context"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/wsi"
)

// Slide pairs a published descriptor with the block-cached reader that
// serves its bytes.  The descriptor is read-only; a Slide is safe to share
// across concurrent requests.
type Slide struct {
	Desc *Descriptor

	r storage.RangeReader
}

// NewSlide binds a descriptor to its byte source.
func NewSlide(desc *Descriptor, r storage.RangeReader) *Slide {
	return &Slide{Desc: desc, r: r}
}

// Level returns the given level, or nil if the index is out of range.
func (s *Slide) Level(level int) *Level {
	if level < 0 || level >= len(s.Desc.Levels) {
		return nil
	}
	return &s.Desc.Levels[level]
}

// ReadTile returns the decodable compressed bytes of one tile.  The lookup
// is a single range read of exactly the tile's byte count; for SVS slides
// with abbreviated streams, the level's JPEGTables are spliced in.
func (s *Slide) ReadTile(ctx context.Context, level int, x, y uint32) ([]byte, error) {
	lvl := s.Level(level)
	if lvl == nil {
		return nil, wsi.NewError(wsi.ErrInvalidLevel,
			"level %d does not exist (slide has %d levels)", level, len(s.Desc.Levels))
	}
	idx := lvl.TileIndex(x, y)
	if idx < 0 {
		return nil, wsi.NewError(wsi.ErrTileOutOfBounds,
			"tile (%d, %d) is outside the %d x %d grid of level %d", x, y, lvl.TilesX, lvl.TilesY, level)
	}

	offset := lvl.TileOffsets[idx]
	count := lvl.TileByteCounts[idx]
	if count == 0 {
		return nil, wsi.NewError(wsi.ErrDecode, "tile (%d, %d) of level %d holds no data", x, y, level)
	}
	raw, err := s.r.ReadRange(ctx, int64(offset), int64(count))
	if err != nil {
		return nil, err
	}

	if s.Desc.Format == FormatSVS {
		return prepareTileJPEG(lvl.JPEGTables, raw)
	}
	return raw, nil
}
