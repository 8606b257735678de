/*
	This file builds synthetic TIFF, BigTIFF, and SVS-style files in memory
	for parser and end-to-end tests.  Both byte orders and both container
	variants are supported, with tile data, per-IFD JPEGTables, strip
	organization, and Aperio-style descriptions as options.
*/

package tests

import (
	"encoding/binary"

	"github.com/PABannier/WSIStreamer/tiff"
)

// LevelSpec describes one IFD of a synthetic file.
type LevelSpec struct {
	Width      uint32
	Height     uint32
	TileWidth  uint32
	TileHeight uint32

	// Tiles holds the row-major tile payloads.  When nil, placeholder
	// payloads are generated so offsets and byte counts stay consistent.
	Tiles [][]byte

	// JPEGTables, when set, is written as the IFD's JPEGTables tag.
	JPEGTables []byte

	// Compression defaults to JPEG (7).
	Compression uint16

	// Stripped emits strip tags instead of tile tags.
	Stripped bool

	// Description is written as the ImageDescription tag when nonempty.
	Description string

	// ShortByteCounts stores TileByteCounts as SHORT instead of LONG,
	// exercising per-declared-type array parsing.
	ShortByteCounts bool
}

// FileSpec describes a whole synthetic file.
type FileSpec struct {
	BigEndian bool
	BigTIFF   bool
	Levels    []LevelSpec
}

// tileCount returns the number of tile payloads the level needs.
func (l *LevelSpec) tileCount() int {
	if l.Stripped {
		return 1
	}
	tilesX := (l.Width + l.TileWidth - 1) / l.TileWidth
	tilesY := (l.Height + l.TileHeight - 1) / l.TileHeight
	return int(tilesX * tilesY)
}

type rawEntry struct {
	tag   uint16
	typ   uint16
	count uint64
	data  []byte // element bytes in file byte order
	value []byte // resolved value field (inline data or offset)
}

type tiffWriter struct {
	bo  binary.ByteOrder
	big bool
}

func (w tiffWriter) u16(v uint16) []byte {
	b := make([]byte, 2)
	w.bo.PutUint16(b, v)
	return b
}

func (w tiffWriter) u32(v uint32) []byte {
	b := make([]byte, 4)
	w.bo.PutUint32(b, v)
	return b
}

func (w tiffWriter) u64(v uint64) []byte {
	b := make([]byte, 8)
	w.bo.PutUint64(b, v)
	return b
}

func (w tiffWriter) shortArray(vals []uint64) []byte {
	out := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		out = append(out, w.u16(uint16(v))...)
	}
	return out
}

func (w tiffWriter) longArray(vals []uint64) []byte {
	out := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		out = append(out, w.u32(uint32(v))...)
	}
	return out
}

func (w tiffWriter) long8Array(vals []uint64) []byte {
	out := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		out = append(out, w.u64(v)...)
	}
	return out
}

func (w tiffWriter) headerSize() int {
	if w.big {
		return tiff.BigHeaderSize
	}
	return tiff.HeaderSize
}

func (w tiffWriter) entrySize() int {
	if w.big {
		return 20
	}
	return 12
}

func (w tiffWriter) countSize() int {
	if w.big {
		return 8
	}
	return 2
}

func (w tiffWriter) offsetSize() int {
	if w.big {
		return 8
	}
	return 4
}

func (w tiffWriter) inlineSize() int {
	return w.offsetSize()
}

// BuildTIFF assembles a complete file from the spec.  Layout: header, tile
// data region, out-of-line value region, then the IFD chain.
func BuildTIFF(spec FileSpec) []byte {
	w := tiffWriter{bo: binary.ByteOrder(binary.LittleEndian), big: spec.BigTIFF}
	if spec.BigEndian {
		w.bo = binary.BigEndian
	}

	// Tile data region, directly after the header.
	var tileRegion []byte
	tileOffsets := make([][]uint64, len(spec.Levels))
	tileCounts := make([][]uint64, len(spec.Levels))
	base := uint64(w.headerSize())
	for i := range spec.Levels {
		l := &spec.Levels[i]
		tiles := l.Tiles
		if tiles == nil {
			tiles = make([][]byte, l.tileCount())
			for j := range tiles {
				tiles[j] = []byte{0xFF, 0xD8, byte(i), byte(j), 0xFF, 0xD9}
			}
		}
		for _, t := range tiles {
			tileOffsets[i] = append(tileOffsets[i], base+uint64(len(tileRegion)))
			tileCounts[i] = append(tileCounts[i], uint64(len(t)))
			tileRegion = append(tileRegion, t...)
			if len(tileRegion)%2 == 1 {
				tileRegion = append(tileRegion, 0)
			}
		}
	}

	// Out-of-line value region follows the tile data.
	extBase := base + uint64(len(tileRegion))
	var ext []byte
	addExt := func(data []byte) uint64 {
		off := extBase + uint64(len(ext))
		ext = append(ext, data...)
		if len(ext)%2 == 1 {
			ext = append(ext, 0)
		}
		return off
	}

	// Build per-IFD entry lists.  Out-of-line values land in the value
	// region here, so the region is complete before IFD offsets are fixed.
	resolveValue := func(e *rawEntry) {
		e.value = make([]byte, w.inlineSize())
		if len(e.data) <= w.inlineSize() {
			copy(e.value, e.data)
		} else {
			off := addExt(e.data)
			if w.big {
				copy(e.value, w.u64(off))
			} else {
				copy(e.value, w.u32(uint32(off)))
			}
		}
	}

	ifdEntries := make([][]rawEntry, len(spec.Levels))
	for i := range spec.Levels {
		l := &spec.Levels[i]
		compression := l.Compression
		if compression == 0 {
			compression = tiff.CompressionJPEG
		}

		var entries []rawEntry
		add := func(tag, typ uint16, count uint64, data []byte) {
			entries = append(entries, rawEntry{tag: tag, typ: typ, count: count, data: data})
		}

		add(tiff.TagImageWidth, tiff.TypeLong, 1, w.u32(l.Width))
		add(tiff.TagImageLength, tiff.TypeLong, 1, w.u32(l.Height))
		add(tiff.TagBitsPerSample, tiff.TypeShort, 3, w.shortArray([]uint64{8, 8, 8}))
		add(tiff.TagCompression, tiff.TypeShort, 1, w.u16(compression))
		add(tiff.TagPhotometricInterpretation, tiff.TypeShort, 1, w.u16(6))
		if l.Description != "" {
			desc := append([]byte(l.Description), 0)
			add(tiff.TagImageDescription, tiff.TypeASCII, uint64(len(desc)), desc)
		}
		if l.Stripped {
			add(tiff.TagStripOffsets, tiff.TypeLong, uint64(len(tileOffsets[i])), w.longArray(tileOffsets[i]))
			add(tiff.TagSamplesPerPixel, tiff.TypeShort, 1, w.u16(3))
			add(tiff.TagRowsPerStrip, tiff.TypeLong, 1, w.u32(l.Height))
			add(tiff.TagStripByteCounts, tiff.TypeLong, uint64(len(tileCounts[i])), w.longArray(tileCounts[i]))
		} else {
			add(tiff.TagSamplesPerPixel, tiff.TypeShort, 1, w.u16(3))
			add(tiff.TagTileWidth, tiff.TypeLong, 1, w.u32(l.TileWidth))
			add(tiff.TagTileLength, tiff.TypeLong, 1, w.u32(l.TileHeight))
			if w.big {
				add(tiff.TagTileOffsets, tiff.TypeLong8, uint64(len(tileOffsets[i])), w.long8Array(tileOffsets[i]))
			} else {
				add(tiff.TagTileOffsets, tiff.TypeLong, uint64(len(tileOffsets[i])), w.longArray(tileOffsets[i]))
			}
			if l.ShortByteCounts {
				add(tiff.TagTileByteCounts, tiff.TypeShort, uint64(len(tileCounts[i])), w.shortArray(tileCounts[i]))
			} else {
				add(tiff.TagTileByteCounts, tiff.TypeLong, uint64(len(tileCounts[i])), w.longArray(tileCounts[i]))
			}
			if l.JPEGTables != nil {
				add(tiff.TagJPEGTables, tiff.TypeUndefined, uint64(len(l.JPEGTables)), l.JPEGTables)
			}
		}
		for j := range entries {
			resolveValue(&entries[j])
		}
		ifdEntries[i] = entries
	}

	// The IFD chain follows the value region; sizes are now computable.
	ifdBase := extBase + uint64(len(ext))
	ifdOffsets := make([]uint64, len(spec.Levels))
	pos := ifdBase
	for i := range spec.Levels {
		ifdOffsets[i] = pos
		pos += uint64(w.countSize() + len(ifdEntries[i])*w.entrySize() + w.offsetSize())
	}

	var ifdRegion []byte
	for i, entries := range ifdEntries {
		if w.big {
			ifdRegion = append(ifdRegion, w.u64(uint64(len(entries)))...)
		} else {
			ifdRegion = append(ifdRegion, w.u16(uint16(len(entries)))...)
		}
		for _, e := range entries {
			ifdRegion = append(ifdRegion, w.u16(e.tag)...)
			ifdRegion = append(ifdRegion, w.u16(e.typ)...)
			if w.big {
				ifdRegion = append(ifdRegion, w.u64(e.count)...)
			} else {
				ifdRegion = append(ifdRegion, w.u32(uint32(e.count))...)
			}
			ifdRegion = append(ifdRegion, e.value...)
		}
		next := uint64(0)
		if i+1 < len(ifdEntries) {
			next = ifdOffsets[i+1]
		}
		if w.big {
			ifdRegion = append(ifdRegion, w.u64(next)...)
		} else {
			ifdRegion = append(ifdRegion, w.u32(uint32(next))...)
		}
	}

	// Header last, now that the first IFD offset is known.
	var header []byte
	if spec.BigEndian {
		header = append(header, 'M', 'M')
	} else {
		header = append(header, 'I', 'I')
	}
	if w.big {
		header = append(header, w.u16(43)...)
		header = append(header, w.u16(8)...)
		header = append(header, w.u16(0)...)
		header = append(header, w.u64(ifdOffsets[0])...)
	} else {
		header = append(header, w.u16(42)...)
		header = append(header, w.u32(uint32(ifdOffsets[0]))...)
	}

	out := make([]byte, 0, int(ifdBase)+len(ifdRegion))
	out = append(out, header...)
	out = append(out, tileRegion...)
	out = append(out, ext...)
	out = append(out, ifdRegion...)
	return out
}
