package tests

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"log"
)

// MakeJPEGTile encodes a solid-color image as a complete baseline JPEG.
func MakeJPEGTile(width, height int, c color.RGBA) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		log.Fatalf("Unable to encode fixture JPEG: %v\n", err)
	}
	return buf.Bytes()
}

// SplitJPEG splits a complete JPEG into an Aperio-style JPEGTables blob
// (SOI + DQT/DHT segments + EOI) and an abbreviated tile stream (SOI + the
// remaining segments through end of scan).  Merging the two back together
// must yield a decodable image.
func SplitJPEG(data []byte) (tables, abbreviated []byte) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		log.Fatalf("SplitJPEG input is not a JPEG\n")
	}
	tables = []byte{0xFF, 0xD8}
	abbreviated = []byte{0xFF, 0xD8}

	pos := 2
	for pos+3 < len(data) {
		if data[pos] != 0xFF {
			log.Fatalf("SplitJPEG lost marker synchronization at %d\n", pos)
		}
		marker := data[pos+1]
		if marker == 0xDA { // start of scan: the rest is entropy data + EOI
			abbreviated = append(abbreviated, data[pos:]...)
			tables = append(tables, 0xFF, 0xD9)
			return tables, abbreviated
		}
		length := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		segment := data[pos : pos+2+length]
		if marker == 0xDB || marker == 0xC4 { // DQT / DHT
			tables = append(tables, segment...)
		} else {
			abbreviated = append(abbreviated, segment...)
		}
		pos += 2 + length
	}
	log.Fatalf("SplitJPEG found no start-of-scan marker\n")
	return nil, nil
}
