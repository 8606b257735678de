package slide

import (
	"context"
	"strings"
	"time"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/tiff"
	"github.com/PABannier/WSIStreamer/wsi"
)

// maxDescriptionBytes bounds how much of an ImageDescription is fetched for
// format detection and metadata.
const maxDescriptionBytes = 4096

// Open parses the slide container and builds its immutable descriptor.  The
// reader should already be wrapped by the block cache; a cold open costs
// O(levels) range reads.
func Open(ctx context.Context, id string, r storage.RangeReader) (*Descriptor, error) {
	start := time.Now()

	p, err := tiff.NewParser(ctx, r)
	if err != nil {
		return nil, err
	}
	ifds, err := p.IFDs(ctx)
	if err != nil {
		return nil, err
	}

	description, err := readDescription(ctx, p, &ifds[0])
	if err != nil {
		return nil, err
	}
	format := FormatGenericTIFF
	if strings.Contains(description, "Aperio") {
		format = FormatSVS
	}

	pyr, err := p.BuildPyramid(ctx, ifds)
	if err != nil {
		return nil, err
	}

	desc := &Descriptor{
		ID:     id,
		Format: format,
		Levels: make([]Level, 0, len(pyr.Levels)),
	}
	if format == FormatSVS {
		desc.Metadata = parseAperioDescription(description)
	} else {
		desc.Metadata = Metadata{Description: description, Properties: map[string]string{}}
	}

	for i := range pyr.Levels {
		lvl, err := loadLevel(ctx, p, &pyr.Levels[i])
		if err != nil {
			return nil, err
		}
		desc.Levels = append(desc.Levels, lvl)
	}
	desc.Width = desc.Levels[0].Width
	desc.Height = desc.Levels[0].Height

	wsi.LogDuration(wsi.LogInfo, start, "Opened %s slide %q: %d x %d, %d levels",
		desc.Format, id, desc.Width, desc.Height, len(desc.Levels))
	return desc, nil
}

// loadLevel fetches the tile index arrays and optional JPEGTables of one
// pyramid level.  Each array is fetched with a single range read.
func loadLevel(ctx context.Context, p *tiff.Parser, src *tiff.Level) (Level, error) {
	if src.Compression != tiff.CompressionJPEG {
		return Level{}, wsi.NewError(wsi.ErrUnsupportedFormat,
			"compression %s is not decodable by this server", tiff.CompressionName(src.Compression))
	}

	offsets, err := p.EntryUintArray(ctx, &src.Offsets)
	if err != nil {
		return Level{}, err
	}
	counts, err := p.EntryUintArray(ctx, &src.ByteCounts)
	if err != nil {
		return Level{}, err
	}

	lvl := Level{
		Width:           src.Width,
		Height:          src.Height,
		TileWidth:       src.TileWidth,
		TileHeight:      src.TileHeight,
		TilesX:          src.TilesX,
		TilesY:          src.TilesY,
		Downsample:      src.Downsample,
		Compression:     src.Compression,
		SamplesPerPixel: src.SamplesPerPixel,
		TileOffsets:     offsets,
		TileByteCounts:  counts,
	}
	if src.JPEGTables != nil {
		tables, err := p.EntryBytes(ctx, src.JPEGTables)
		if err != nil {
			return Level{}, err
		}
		lvl.JPEGTables = append([]byte(nil), tables...)
	}
	return lvl, nil
}

// readDescription returns the first IFD's ImageDescription, or "" if absent.
func readDescription(ctx context.Context, p *tiff.Parser, d *tiff.IFD) (string, error) {
	e, ok := d.Entry(tiff.TagImageDescription)
	if !ok {
		return "", nil
	}
	if e.Count > maxDescriptionBytes {
		capped := *e
		capped.Count = maxDescriptionBytes
		e = &capped
	}
	return p.EntryString(ctx, e)
}
