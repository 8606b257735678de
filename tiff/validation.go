package tiff

import (
	"context"

	"github.com/PABannier/WSIStreamer/wsi"
)

// isTiled reports whether the IFD carries all four tile tags.
func isTiled(d *IFD) bool {
	return d.HasTag(TagTileWidth) && d.HasTag(TagTileLength) &&
		d.HasTag(TagTileOffsets) && d.HasTag(TagTileByteCounts)
}

// isStripped reports whether the IFD uses strip organization.
func isStripped(d *IFD) bool {
	return d.HasTag(TagStripOffsets) || d.HasTag(TagStripByteCounts)
}

// validateIFD checks one IFD against the container rules for a servable
// pyramid image: tile organization, a supported compression scheme, and tile
// index arrays that match the tile grid.  All failures surface as
// unsupported-format errors; the checks use only entry headers, so no extra
// range reads are issued.
func (p *Parser) validateIFD(ctx context.Context, d *IFD) error {
	if isStripped(d) && !isTiled(d) {
		return wsi.NewError(wsi.ErrUnsupportedFormat,
			"image uses strip organization instead of tiles")
	}
	if !isTiled(d) {
		return wsi.NewError(wsi.ErrUnsupportedFormat, "image is not tiled")
	}

	compression := uint16(CompressionJPEG)
	if e, ok := d.Entry(TagCompression); ok {
		v, err := p.EntryUint(ctx, e)
		if err != nil {
			return err
		}
		compression = uint16(v)
	}
	if !SupportedCompression(compression) {
		return wsi.NewError(wsi.ErrUnsupportedFormat,
			"unsupported compression: %s", CompressionName(compression))
	}

	width, height, err := p.imageDims(ctx, d)
	if err != nil {
		return err
	}
	tileW, tileH, err := p.tileDims(ctx, d)
	if err != nil {
		return err
	}
	if width == 0 || height == 0 || tileW == 0 || tileH == 0 {
		return wsi.NewError(wsi.ErrUnsupportedFormat, "image or tile dimensions are zero")
	}

	tilesX := (width + tileW - 1) / tileW
	tilesY := (height + tileH - 1) / tileH
	want := uint64(tilesX) * uint64(tilesY)
	offsets, _ := d.Entry(TagTileOffsets)
	counts, _ := d.Entry(TagTileByteCounts)
	if offsets.Count != want || counts.Count != want {
		return wsi.NewError(wsi.ErrUnsupportedFormat,
			"tile index arrays do not match the tile grid (%d x %d tiles)", tilesX, tilesY)
	}
	return nil
}

func (p *Parser) imageDims(ctx context.Context, d *IFD) (width, height uint32, err error) {
	we, ok := d.Entry(TagImageWidth)
	if !ok {
		return 0, 0, wsi.NewError(wsi.ErrUnsupportedFormat, "image width missing")
	}
	he, ok := d.Entry(TagImageLength)
	if !ok {
		return 0, 0, wsi.NewError(wsi.ErrUnsupportedFormat, "image height missing")
	}
	w, err := p.EntryUint(ctx, we)
	if err != nil {
		return 0, 0, err
	}
	h, err := p.EntryUint(ctx, he)
	if err != nil {
		return 0, 0, err
	}
	return uint32(w), uint32(h), nil
}

func (p *Parser) tileDims(ctx context.Context, d *IFD) (tileW, tileH uint32, err error) {
	we, ok := d.Entry(TagTileWidth)
	if !ok {
		return 0, 0, wsi.NewError(wsi.ErrUnsupportedFormat, "tile width missing")
	}
	he, ok := d.Entry(TagTileLength)
	if !ok {
		return 0, 0, wsi.NewError(wsi.ErrUnsupportedFormat, "tile height missing")
	}
	w, err := p.EntryUint(ctx, we)
	if err != nil {
		return 0, 0, err
	}
	h, err := p.EntryUint(ctx, he)
	if err != nil {
		return 0, 0, err
	}
	return uint32(w), uint32(h), nil
}
