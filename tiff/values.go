package tiff

import (
	"context"
	"strings"

	"github.com/PABannier/WSIStreamer/wsi"
)

// valueOffset interprets the entry's value field as an absolute file offset.
func (p *Parser) valueOffset(e *Entry) uint64 {
	if p.hdr.Big {
		return p.hdr.Order.Uint64(e.Value)
	}
	return uint64(p.hdr.Order.Uint32(e.Value))
}

// EntryBytes returns the entry's full data: the leading bytes of the value
// field when inline, otherwise one range read at the referenced offset.
func (p *Parser) EntryBytes(ctx context.Context, e *Entry) ([]byte, error) {
	size := e.byteSize()
	if size == 0 {
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat,
			"unknown field type %d in TIFF directory", e.Type)
	}
	if e.Inline(p.hdr.Big) {
		return e.Value[:size], nil
	}
	offset := p.valueOffset(e)
	if offset+size > uint64(p.size) {
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: tag value beyond end of file")
	}
	return p.r.ReadRange(ctx, int64(offset), int64(size))
}

// EntryUint returns a single unsigned scalar, accepting BYTE, SHORT, LONG
// and LONG8 entries with count 1.
func (p *Parser) EntryUint(ctx context.Context, e *Entry) (uint64, error) {
	if e.Count != 1 {
		return 0, wsi.NewError(wsi.ErrUnsupportedFormat,
			"expected a single value in TIFF directory, got %d", e.Count)
	}
	b, err := p.EntryBytes(ctx, e)
	if err != nil {
		return 0, err
	}
	switch e.Type {
	case TypeByte:
		return uint64(b[0]), nil
	case TypeShort:
		return uint64(p.hdr.Order.Uint16(b)), nil
	case TypeLong:
		return uint64(p.hdr.Order.Uint32(b)), nil
	case TypeLong8:
		return p.hdr.Order.Uint64(b), nil
	default:
		return 0, wsi.NewError(wsi.ErrUnsupportedFormat,
			"unexpected field type %d for scalar TIFF value", e.Type)
	}
}

// EntryUintArray returns all elements of an unsigned-integer entry, fetched
// with a single range read and parsed strictly according to the declared
// field type.  Logically identical tags may use SHORT in one file and LONG
// or LONG8 in another.
func (p *Parser) EntryUintArray(ctx context.Context, e *Entry) ([]uint64, error) {
	if e.Count == 0 {
		return nil, nil
	}
	b, err := p.EntryBytes(ctx, e)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, e.Count)
	switch e.Type {
	case TypeByte:
		for i := range out {
			out[i] = uint64(b[i])
		}
	case TypeShort:
		for i := range out {
			out[i] = uint64(p.hdr.Order.Uint16(b[i*2:]))
		}
	case TypeLong:
		for i := range out {
			out[i] = uint64(p.hdr.Order.Uint32(b[i*4:]))
		}
	case TypeLong8:
		for i := range out {
			out[i] = p.hdr.Order.Uint64(b[i*8:])
		}
	default:
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat,
			"unexpected field type %d for integer array in TIFF directory", e.Type)
	}
	return out, nil
}

// EntryString returns an ASCII entry with trailing NULs removed.
func (p *Parser) EntryString(ctx context.Context, e *Entry) (string, error) {
	if e.Type != TypeASCII && e.Type != TypeByte && e.Type != TypeUndefined {
		return "", wsi.NewError(wsi.ErrUnsupportedFormat,
			"unexpected field type %d for text in TIFF directory", e.Type)
	}
	b, err := p.EntryBytes(ctx, e)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
