/*
	This file handles Aperio's abbreviated JPEG tile streams.  SVS tiles
	usually omit their quantization and Huffman tables; the tables are stored
	once per IFD in the JPEGTables tag and must be spliced into each tile
	before decoding.
*/

package slide

import (
	"encoding/binary"

	"github.com/PABannier/WSIStreamer/wsi"
)

// JPEG markers used when classifying tile streams.
const (
	markerSOI = 0xD8 // start of image
	markerEOI = 0xD9 // end of image
	markerDQT = 0xDB // define quantization table
	markerDHT = 0xC4 // define Huffman table
	markerSOS = 0xDA // start of scan
)

// isAbbreviatedJPEG reports whether data is a JPEG stream that reaches its
// first SOS without defining any quantization or Huffman table.
func isAbbreviatedJPEG(data []byte) bool {
	if len(data) < 4 || data[0] != 0xFF || data[1] != markerSOI {
		return false
	}
	pos := 2
	for pos+1 < len(data) {
		if data[pos] != 0xFF {
			pos++
			continue
		}
		marker := data[pos+1]
		switch marker {
		case markerDQT, markerDHT:
			return false
		case markerSOS:
			return true
		case 0x00, markerSOI, markerEOI:
			pos += 2
		default:
			// Skip the marker segment using its length field.
			if pos+3 < len(data) {
				length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
				pos += 2 + length
			} else {
				pos += 2
			}
		}
	}
	return false
}

// mergeJPEGTables splices a JPEGTables blob and an abbreviated tile stream
// into one complete JPEG: the tables minus their trailing EOI, followed by
// the tile minus its leading SOI.
func mergeJPEGTables(tables, tile []byte) []byte {
	tablesEnd := len(tables)
	if tablesEnd >= 2 && tables[tablesEnd-2] == 0xFF && tables[tablesEnd-1] == markerEOI {
		tablesEnd -= 2
	}
	tileStart := 0
	if len(tile) >= 2 && tile[0] == 0xFF && tile[1] == markerSOI {
		tileStart = 2
	}
	merged := make([]byte, 0, tablesEnd+len(tile)-tileStart)
	merged = append(merged, tables[:tablesEnd]...)
	merged = append(merged, tile[tileStart:]...)
	return merged
}

// prepareTileJPEG returns a decodable JPEG stream for a tile.  Complete
// streams pass through unchanged; abbreviated streams are merged with the
// level's JPEGTables blob.  An abbreviated stream with no tables available
// cannot be decoded and is an error, never passed downstream raw.
func prepareTileJPEG(tables, tile []byte) ([]byte, error) {
	if !isAbbreviatedJPEG(tile) {
		return tile, nil
	}
	if len(tables) == 0 {
		return nil, wsi.NewError(wsi.ErrDecode,
			"tile stream carries no JPEG tables and the image provides none")
	}
	if len(tables) < 4 || tables[0] != 0xFF || tables[1] != markerSOI {
		return nil, wsi.NewError(wsi.ErrDecode, "malformed JPEG tables blob")
	}
	return mergeJPEGTables(tables, tile), nil
}
