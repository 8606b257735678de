package slide

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/PABannier/WSIStreamer/wsi"
)

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}

// fixtureJPEG returns a small complete JPEG plus its split into an
// Aperio-style tables blob and abbreviated stream, split the same way as
// tests.SplitJPEG.
func fixtureJPEG(t *testing.T) (full, tables, abbreviated []byte) {
	t.Helper()
	full = encodeGray(t, 64, 64)

	tables = []byte{0xFF, 0xD8}
	abbreviated = []byte{0xFF, 0xD8}
	pos := 2
	for pos+3 < len(full) {
		if full[pos] != 0xFF {
			t.Fatalf("fixture JPEG lost marker sync at %d\n", pos)
		}
		marker := full[pos+1]
		if marker == markerSOS {
			abbreviated = append(abbreviated, full[pos:]...)
			tables = append(tables, 0xFF, markerEOI)
			return full, tables, abbreviated
		}
		length := int(full[pos+2])<<8 | int(full[pos+3])
		segment := full[pos : pos+2+length]
		if marker == markerDQT || marker == markerDHT {
			tables = append(tables, segment...)
		} else {
			abbreviated = append(abbreviated, segment...)
		}
		pos += 2 + length
	}
	t.Fatalf("fixture JPEG has no start-of-scan marker\n")
	return nil, nil, nil
}

func encodeGray(t *testing.T, w, h int) []byte {
	t.Helper()
	img := testImage(w, h)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("unable to encode fixture JPEG: %v\n", err)
	}
	return buf.Bytes()
}

func TestAbbreviatedDetection(t *testing.T) {
	full, _, abbreviated := fixtureJPEG(t)
	if isAbbreviatedJPEG(full) {
		t.Errorf("complete stream misdetected as abbreviated\n")
	}
	if !isAbbreviatedJPEG(abbreviated) {
		t.Errorf("abbreviated stream not detected\n")
	}
	if isAbbreviatedJPEG([]byte{0xFF, 0xD8}) {
		t.Errorf("bare SOI misdetected as abbreviated\n")
	}
	if isAbbreviatedJPEG(nil) {
		t.Errorf("empty data misdetected as abbreviated\n")
	}

	// Minimal hand-built abbreviated stream: SOI straight to SOS.
	minimal := []byte{0xFF, 0xD8, 0xFF, 0xDA, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3F, 0x00}
	if !isAbbreviatedJPEG(minimal) {
		t.Errorf("minimal SOI+SOS stream not detected as abbreviated\n")
	}
}

func TestMergeJPEGTables(t *testing.T) {
	full, tables, abbreviated := fixtureJPEG(t)

	merged, err := prepareTileJPEG(tables, abbreviated)
	if err != nil {
		t.Fatalf("prepareTileJPEG failed: %v\n", err)
	}

	// The merged stream must decode to the same pixels as the original.
	want, err := jpeg.Decode(bytes.NewReader(full))
	if err != nil {
		t.Fatalf("reference decode failed: %v\n", err)
	}
	got, err := jpeg.Decode(bytes.NewReader(merged))
	if err != nil {
		t.Fatalf("merged stream does not decode: %v\n", err)
	}
	if got.Bounds() != want.Bounds() {
		t.Fatalf("merged decode bounds %v != reference %v\n", got.Bounds(), want.Bounds())
	}
	for _, pt := range []struct{ x, y int }{{0, 0}, {31, 31}, {63, 63}, {10, 50}} {
		gr, gg, gb, _ := got.At(pt.x, pt.y).RGBA()
		wr, wg, wb, _ := want.At(pt.x, pt.y).RGBA()
		if gr != wr || gg != wg || gb != wb {
			t.Errorf("pixel (%d,%d) differs after merge\n", pt.x, pt.y)
		}
	}
}

func TestCompleteStreamPassthrough(t *testing.T) {
	full, tables, _ := fixtureJPEG(t)
	out, err := prepareTileJPEG(tables, full)
	if err != nil {
		t.Fatalf("prepareTileJPEG failed on complete stream: %v\n", err)
	}
	if !bytes.Equal(out, full) {
		t.Errorf("complete stream should pass through unchanged\n")
	}
}

func TestAbbreviatedWithoutTablesFails(t *testing.T) {
	_, _, abbreviated := fixtureJPEG(t)
	_, err := prepareTileJPEG(nil, abbreviated)
	if err == nil {
		t.Fatalf("abbreviated stream with no tables must not be passed through\n")
	}
	if kind := wsi.KindOf(err); kind != wsi.ErrDecode {
		t.Errorf("expected decode_error, got %s\n", kind)
	}
}
