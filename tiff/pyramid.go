/*
	This file classifies a file's IFDs into pyramid levels.  Slide files mix
	pyramid resolutions with auxiliary images (label, macro, thumbnail); a
	level is retained only when its downsample against the base image is close
	to a positive integer and consistent between the two axes.
*/

package tiff

import (
	"context"
	"math"
	"sort"

	"github.com/PABannier/WSIStreamer/wsi"
)

// downsampleTolerance is the relative tolerance on the integer downsample
// and on agreement between the x and y downsamples.
const downsampleTolerance = 0.05

// Level is one retained pyramid level, ordered by increasing downsample.
type Level struct {
	IFDIndex   int
	Width      uint32
	Height     uint32
	TileWidth  uint32
	TileHeight uint32
	TilesX     uint32
	TilesY     uint32
	Downsample float64

	Compression     uint16
	SamplesPerPixel uint16

	// Entries resolved during classification; the slide layer fetches the
	// arrays and tables they reference.
	Offsets    Entry
	ByteCounts Entry
	JPEGTables *Entry
}

// Pyramid is the classified level stack of one file.
type Pyramid struct {
	Header Header
	Levels []Level
}

// BuildPyramid classifies the given IFDs into an ordered pyramid.  IFDs that
// fail container validation or the downsample heuristic are excluded; if no
// IFD qualifies, the first validation failure is returned so the caller sees
// why (e.g. strip organization).
func (p *Parser) BuildPyramid(ctx context.Context, ifds []IFD) (*Pyramid, error) {
	var candidates []Level
	var firstErr error
	for i := range ifds {
		d := &ifds[i]
		if err := p.validateIFD(ctx, d); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			wsi.Debugf("Excluding directory %d of %s: %v\n", d.Index, p.r.ID(), err)
			continue
		}
		lvl, err := p.levelFromIFD(ctx, d)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, lvl)
	}
	if len(candidates) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat, "no pyramidal image found in file")
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Width > candidates[j].Width
	})

	base := candidates[0]
	levels := make([]Level, 0, len(candidates))
	for _, lvl := range candidates {
		dsX := float64(base.Width) / float64(lvl.Width)
		dsY := float64(base.Height) / float64(lvl.Height)
		if math.Abs(dsX-dsY)/dsX >= downsampleTolerance {
			wsi.Debugf("Excluding directory %d of %s: inconsistent downsample %.2f x %.2f\n",
				lvl.IFDIndex, p.r.ID(), dsX, dsY)
			continue
		}
		ds := (dsX + dsY) / 2
		rounded := math.Round(ds)
		if rounded < 1 || math.Abs(ds-rounded) > downsampleTolerance*ds {
			wsi.Debugf("Excluding directory %d of %s: non-integral downsample %.2f\n",
				lvl.IFDIndex, p.r.ID(), ds)
			continue
		}
		if n := len(levels); n > 0 && lvl.Width >= levels[n-1].Width {
			continue // duplicate resolution
		}
		lvl.Downsample = ds
		levels = append(levels, lvl)
	}

	return &Pyramid{Header: p.hdr, Levels: levels}, nil
}

// levelFromIFD extracts the level geometry of a validated IFD.
func (p *Parser) levelFromIFD(ctx context.Context, d *IFD) (Level, error) {
	width, height, err := p.imageDims(ctx, d)
	if err != nil {
		return Level{}, err
	}
	tileW, tileH, err := p.tileDims(ctx, d)
	if err != nil {
		return Level{}, err
	}

	compression := uint16(CompressionJPEG)
	if e, ok := d.Entry(TagCompression); ok {
		v, err := p.EntryUint(ctx, e)
		if err != nil {
			return Level{}, err
		}
		compression = uint16(v)
	}
	samples := uint16(3)
	if e, ok := d.Entry(TagSamplesPerPixel); ok {
		v, err := p.EntryUint(ctx, e)
		if err != nil {
			return Level{}, err
		}
		samples = uint16(v)
	}

	offsets, _ := d.Entry(TagTileOffsets)
	counts, _ := d.Entry(TagTileByteCounts)
	lvl := Level{
		IFDIndex:        d.Index,
		Width:           width,
		Height:          height,
		TileWidth:       tileW,
		TileHeight:      tileH,
		TilesX:          (width + tileW - 1) / tileW,
		TilesY:          (height + tileH - 1) / tileH,
		Downsample:      1,
		Compression:     compression,
		SamplesPerPixel: samples,
		Offsets:         *offsets,
		ByteCounts:      *counts,
	}
	if e, ok := d.Entry(TagJPEGTables); ok {
		cp := *e
		lvl.JPEGTables = &cp
	}
	return lvl, nil
}
