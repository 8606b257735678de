/*
	The tests package provides shared fixtures for testing the tile server:
	in-memory byte sources, a synthetic TIFF/SVS builder, and JPEG helpers.
*/
package tests

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/wsi"
)

func init() {
	wsi.SetLogLevel(wsi.LogWarning)
}

// MemReader is an in-memory RangeReader that counts underlying reads and can
// simulate transient transport failures.
type MemReader struct {
	Name string
	Data []byte

	readCount int64

	// TransientFailures makes the next N reads fail with a transport error.
	TransientFailures int64
}

// NewMemReader returns a reader over the given bytes.
func NewMemReader(name string, data []byte) *MemReader {
	return &MemReader{Name: name, Data: data}
}

func (r *MemReader) ID() string {
	return "mem://" + r.Name
}

func (r *MemReader) Size(ctx context.Context) (int64, error) {
	if r.Data == nil {
		return 0, wsi.NewError(wsi.ErrNotFound, "object not found: %s", r.ID())
	}
	return int64(len(r.Data)), nil
}

func (r *MemReader) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if r.Data == nil {
		return nil, wsi.NewError(wsi.ErrNotFound, "object not found: %s", r.ID())
	}
	for {
		n := atomic.LoadInt64(&r.TransientFailures)
		if n <= 0 {
			break
		}
		if atomic.CompareAndSwapInt64(&r.TransientFailures, n, n-1) {
			return nil, wsi.NewError(wsi.ErrTransport, "simulated transport failure for %s", r.ID())
		}
	}
	atomic.AddInt64(&r.readCount, 1)
	if offset < 0 || offset+length > int64(len(r.Data)) {
		return nil, wsi.NewError(wsi.ErrIO,
			"range out of bounds: requested %d bytes at offset %d, object size is %d",
			length, offset, len(r.Data))
	}
	out := make([]byte, length)
	copy(out, r.Data[offset:offset+length])
	return out, nil
}

// ReadCount returns the number of underlying reads that got past the
// simulated transport failures, including reads rejected as out of bounds.
func (r *MemReader) ReadCount() int64 {
	return atomic.LoadInt64(&r.readCount)
}

// MapSource is a slide.Source backed by a map of slide id to file bytes.
// Missing ids behave like absent objects.
type MapSource struct {
	Slides map[string][]byte

	mu        sync.Mutex
	openCount int64
	readers   map[string]*MemReader
}

// NewMapSource returns a source serving the given slide files.
func NewMapSource(slides map[string][]byte) *MapSource {
	return &MapSource{Slides: slides, readers: make(map[string]*MemReader)}
}

func (s *MapSource) OpenObject(slideID string) storage.RangeReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCount++
	r := NewMemReader(slideID, s.Slides[slideID])
	s.readers[slideID] = r
	return r
}

// OpenCount returns how many times a reader was created.
func (s *MapSource) OpenCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCount
}

// Reader returns the most recently created reader for a slide id.
func (s *MapSource) Reader(slideID string) *MemReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readers[slideID]
}
