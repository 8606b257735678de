/*
	Package tiff parses the TIFF and BigTIFF container format over a
	range-addressed byte source.  It is tuned for remote objects: each IFD
	costs two small range reads (its entry count, then all entries at once)
	and tile offset arrays are fetched whole,
	so a cold open of a typical pyramidal slide costs O(levels) reads rather
	than O(tiles).
*/
package tiff

import (
	"context"
	"encoding/binary"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/wsi"
)

const (
	// HeaderSize is the size of a classic TIFF header.
	HeaderSize = 8

	// BigHeaderSize is the size of a BigTIFF header.
	BigHeaderSize = 16

	// maxIFDChain bounds the IFD walk so cyclic next-IFD offsets in a
	// malicious file cannot hang the parser.
	maxIFDChain = 64

	// maxIFDEntries bounds the per-IFD entry count accepted by the parser.
	maxIFDEntries = 4096

	versionClassic = 42
	versionBig     = 43
)

// ByteOrder is the endianness of all multi-byte values in a TIFF file, fixed
// by the first two header bytes.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

func (o ByteOrder) order() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (o ByteOrder) Uint16(b []byte) uint16 {
	return o.order().Uint16(b)
}

func (o ByteOrder) Uint32(b []byte) uint32 {
	return o.order().Uint32(b)
}

func (o ByteOrder) Uint64(b []byte) uint64 {
	return o.order().Uint64(b)
}

// Header is the parsed file header: the byte order and variant that shape
// every subsequent read, plus the location of the first IFD.
type Header struct {
	Order    ByteOrder
	Big      bool
	FirstIFD uint64
}

// EntrySize returns the size in bytes of one IFD entry.
func (h Header) EntrySize() int {
	if h.Big {
		return 20
	}
	return 12
}

// CountSize returns the size in bytes of the entry-count field at the start
// of an IFD.
func (h Header) CountSize() int {
	if h.Big {
		return 8
	}
	return 2
}

// OffsetSize returns the size in bytes of offsets, including the next-IFD
// trailer and the value field of an entry.
func (h Header) OffsetSize() int {
	if h.Big {
		return 8
	}
	return 4
}

// ParseHeader parses a TIFF or BigTIFF header from the first bytes of a file.
func ParseHeader(b []byte, fileSize int64) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat,
			"file too small to be a TIFF: %d bytes", len(b))
	}

	var order ByteOrder
	switch {
	case b[0] == 'I' && b[1] == 'I':
		order = LittleEndian
	case b[0] == 'M' && b[1] == 'M':
		order = BigEndian
	default:
		return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat,
			"not a TIFF file: bad byte-order mark 0x%02X%02X", b[0], b[1])
	}

	version := order.Uint16(b[2:4])
	switch version {
	case versionClassic:
		first := uint64(order.Uint32(b[4:8]))
		if first >= uint64(fileSize) {
			return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: IFD offset beyond end of file")
		}
		return Header{Order: order, Big: false, FirstIFD: first}, nil

	case versionBig:
		if len(b) < BigHeaderSize {
			return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat,
				"file too small to be a BigTIFF: %d bytes", len(b))
		}
		if offsetSize := order.Uint16(b[4:6]); offsetSize != 8 {
			return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat,
				"unsupported BigTIFF offset size %d", offsetSize)
		}
		first := order.Uint64(b[8:16])
		if first >= uint64(fileSize) {
			return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt BigTIFF: IFD offset beyond end of file")
		}
		return Header{Order: order, Big: true, FirstIFD: first}, nil

	default:
		return Header{}, wsi.NewError(wsi.ErrUnsupportedFormat,
			"not a TIFF file: unknown version %d", version)
	}
}

// Parser reads TIFF structure from a range-addressed source.
type Parser struct {
	r    storage.RangeReader
	size int64
	hdr  Header
}

// NewParser reads and validates the file header, returning a parser bound to
// the source.
func NewParser(ctx context.Context, r storage.RangeReader) (*Parser, error) {
	size, err := r.Size(ctx)
	if err != nil {
		return nil, err
	}
	if size < HeaderSize {
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat,
			"file too small to be a TIFF: %d bytes", size)
	}
	headerLen := int64(BigHeaderSize)
	if size < headerLen {
		headerLen = size
	}
	b, err := r.ReadRange(ctx, 0, headerLen)
	if err != nil {
		return nil, err
	}
	hdr, err := ParseHeader(b, size)
	if err != nil {
		return nil, err
	}
	return &Parser{r: r, size: size, hdr: hdr}, nil
}

// Header returns the parsed file header.
func (p *Parser) Header() Header {
	return p.hdr
}

// Size returns the total file size in bytes.
func (p *Parser) Size() int64 {
	return p.size
}
