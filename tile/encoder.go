package tile

import (
	"bytes"
	"image"
	"image/jpeg"
	"runtime"

	"github.com/PABannier/WSIStreamer/wsi"
)

// Encoder runs the decode + re-encode pipeline.  Decoding is CPU-bound, so
// concurrency is capped to keep tile transcoding from starving the I/O path.
type Encoder struct {
	cpuSlots chan struct{}
}

// NewEncoder returns an encoder allowing up to GOMAXPROCS concurrent
// transcodes.
func NewEncoder() *Encoder {
	return &Encoder{cpuSlots: make(chan struct{}, runtime.GOMAXPROCS(0))}
}

// Transcode decodes a complete JPEG tile stream and re-encodes it at the
// given quality.
func (e *Encoder) Transcode(data []byte, quality int) ([]byte, error) {
	e.cpuSlots <- struct{}{}
	defer func() { <-e.cpuSlots }()

	img, err := e.decode(data)
	if err != nil {
		return nil, err
	}
	return e.encode(img, quality)
}

func (e *Encoder) decode(data []byte) (image.Image, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, wsi.WrapError(err, wsi.ErrDecode, "unable to decode tile")
	}
	return img, nil
}

func (e *Encoder) encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, wsi.WrapError(err, wsi.ErrEncode, "unable to encode tile")
	}
	return buf.Bytes(), nil
}
