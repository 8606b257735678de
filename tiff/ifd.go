package tiff

import (
	"context"

	"github.com/PABannier/WSIStreamer/wsi"
)

// Entry is one IFD entry.  Value holds the raw value field (4 bytes classic,
// 8 bytes BigTIFF); whether it carries the data itself or an offset to it
// depends on the field type and count.
type Entry struct {
	Tag   uint16
	Type  uint16
	Count uint64
	Value []byte
}

// Inline reports whether the entry's data fits in the value field itself.
func (e *Entry) Inline(big bool) bool {
	sz := typeSize(e.Type)
	if sz == 0 {
		return false
	}
	threshold := uint64(4)
	if big {
		threshold = 8
	}
	return uint64(sz)*e.Count <= threshold
}

// byteSize returns the total size in bytes of the entry's data, or 0 for an
// unknown field type.
func (e *Entry) byteSize() uint64 {
	return uint64(typeSize(e.Type)) * e.Count
}

// IFD is one Image File Directory: the entries describing a single image in
// the file, plus the offset of the next IFD in the chain (0 terminates).
type IFD struct {
	Index   int
	Offset  uint64
	Entries []Entry
	Next    uint64
}

// Entry returns the entry with the given tag, if present.  Entries are
// stored in file order, which the TIFF spec requires to be ascending by tag.
func (d *IFD) Entry(tag uint16) (*Entry, bool) {
	for i := range d.Entries {
		if d.Entries[i].Tag == tag {
			return &d.Entries[i], true
		}
	}
	return nil, false
}

// HasTag reports whether the IFD contains the given tag.
func (d *IFD) HasTag(tag uint16) bool {
	_, ok := d.Entry(tag)
	return ok
}

// readIFD parses the IFD at the given offset.  It costs two range reads: one
// for the entry count and one covering all entries plus the next-IFD
// trailer.  Both usually land in the same cache block.
func (p *Parser) readIFD(ctx context.Context, index int, offset uint64) (IFD, error) {
	h := p.hdr
	countSize := int64(h.CountSize())
	if int64(offset)+countSize > p.size {
		return IFD{}, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: IFD beyond end of file")
	}
	cb, err := p.r.ReadRange(ctx, int64(offset), countSize)
	if err != nil {
		return IFD{}, err
	}
	var count uint64
	if h.Big {
		count = h.Order.Uint64(cb)
	} else {
		count = uint64(h.Order.Uint16(cb))
	}
	if count == 0 || count > maxIFDEntries {
		return IFD{}, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: implausible IFD entry count %d", count)
	}

	entrySize := h.EntrySize()
	bodyLen := int64(count)*int64(entrySize) + int64(h.OffsetSize())
	bodyOffset := int64(offset) + countSize
	if bodyOffset+bodyLen > p.size {
		return IFD{}, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: IFD overruns end of file")
	}
	body, err := p.r.ReadRange(ctx, bodyOffset, bodyLen)
	if err != nil {
		return IFD{}, err
	}

	d := IFD{Index: index, Offset: offset, Entries: make([]Entry, 0, count)}
	for i := uint64(0); i < count; i++ {
		eb := body[int(i)*entrySize : (int(i)+1)*entrySize]
		e := Entry{
			Tag:  h.Order.Uint16(eb[0:2]),
			Type: h.Order.Uint16(eb[2:4]),
		}
		if h.Big {
			e.Count = h.Order.Uint64(eb[4:12])
			e.Value = append([]byte(nil), eb[12:20]...)
		} else {
			e.Count = uint64(h.Order.Uint32(eb[4:8]))
			e.Value = append([]byte(nil), eb[8:12]...)
		}
		d.Entries = append(d.Entries, e)
	}

	trailer := body[int(count)*entrySize:]
	if h.Big {
		d.Next = h.Order.Uint64(trailer)
	} else {
		d.Next = uint64(h.Order.Uint32(trailer))
	}
	return d, nil
}

// IFDs walks the IFD chain from the header's first-IFD offset.  The walk is
// bounded so a cyclic chain fails instead of spinning.
func (p *Parser) IFDs(ctx context.Context) ([]IFD, error) {
	var ifds []IFD
	offset := p.hdr.FirstIFD
	for offset != 0 {
		if len(ifds) >= maxIFDChain {
			return nil, wsi.NewError(wsi.ErrUnsupportedFormat,
				"corrupt TIFF: IFD chain exceeds %d directories", maxIFDChain)
		}
		if offset >= uint64(p.size) {
			return nil, wsi.NewError(wsi.ErrUnsupportedFormat, "corrupt TIFF: IFD offset beyond end of file")
		}
		d, err := p.readIFD(ctx, len(ifds), offset)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, d)
		offset = d.Next
	}
	if len(ifds) == 0 {
		return nil, wsi.NewError(wsi.ErrUnsupportedFormat, "TIFF file contains no image directories")
	}
	return ifds, nil
}
