package storage_test

import (
	"bytes"
	"context"
	"math/rand"
	"sync"
	"testing"

	"github.com/PABannier/WSIStreamer/storage"
	"github.com/PABannier/WSIStreamer/tests"
	"github.com/PABannier/WSIStreamer/wsi"
)

func patternData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 31)
	}
	return data
}

func TestBlockAccounting(t *testing.T) {
	data := patternData(100000)
	src := tests.NewMemReader("obj", data)
	cache := storage.NewBlockCache(4096, 1<<20, 0)
	r := cache.Wrap(src)
	ctx := context.Background()

	cases := []struct {
		offset, length int64
	}{
		{0, 1},
		{0, 4096},      // exactly one block
		{4095, 2},      // straddles a block boundary
		{4096, 4096},   // second block exactly
		{100, 5000},    // two blocks
		{0, 100000},    // whole object
		{99999, 1},     // last byte
		{90000, 10000}, // tail spanning the truncated final block
		{12345, 23456}, // arbitrary span
	}
	for _, tc := range cases {
		got, err := r.ReadRange(ctx, tc.offset, tc.length)
		if err != nil {
			t.Fatalf("ReadRange(%d, %d) failed: %v\n", tc.offset, tc.length, err)
		}
		if !bytes.Equal(got, data[tc.offset:tc.offset+tc.length]) {
			t.Errorf("ReadRange(%d, %d) returned wrong bytes\n", tc.offset, tc.length)
		}
	}

	// Random reads against a fresh cache.
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		offset := rng.Int63n(int64(len(data) - 1))
		length := 1 + rng.Int63n(int64(len(data))-offset)
		got, err := r.ReadRange(ctx, offset, length)
		if err != nil {
			t.Fatalf("random ReadRange(%d, %d) failed: %v\n", offset, length, err)
		}
		if !bytes.Equal(got, data[offset:offset+length]) {
			t.Fatalf("random ReadRange(%d, %d) returned wrong bytes\n", offset, length)
		}
	}
}

func TestBlockCacheHit(t *testing.T) {
	data := patternData(10000)
	src := tests.NewMemReader("obj", data)
	cache := storage.NewBlockCache(4096, 1<<20, 0)
	r := cache.Wrap(src)
	ctx := context.Background()

	if _, err := r.ReadRange(ctx, 0, 100); err != nil {
		t.Fatalf("first read failed: %v\n", err)
	}
	if _, err := r.ReadRange(ctx, 50, 100); err != nil {
		t.Fatalf("second read failed: %v\n", err)
	}
	if n := src.ReadCount(); n != 1 {
		t.Errorf("expected 1 underlying read for overlapping in-block reads, got %d\n", n)
	}
}

func TestSingleflight(t *testing.T) {
	data := patternData(50000)
	src := tests.NewMemReader("obj", data)
	cache := storage.NewBlockCache(8192, 1<<20, 0)
	r := cache.Wrap(src)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	results := make([][]byte, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = r.ReadRange(ctx, int64(i*10), 500)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v\n", i, errs[i])
		}
		if !bytes.Equal(results[i], data[i*10:i*10+500]) {
			t.Errorf("worker %d got wrong bytes\n", i)
		}
	}
	if n := src.ReadCount(); n != 1 {
		t.Errorf("expected exactly 1 underlying read for concurrent in-block reads, got %d\n", n)
	}
}

func TestTransportRetry(t *testing.T) {
	defer storage.SetRetryDelaysForTesting()()

	data := patternData(10000)
	src := tests.NewMemReader("obj", data)
	src.TransientFailures = 2
	cache := storage.NewBlockCache(4096, 1<<20, 0)
	r := cache.Wrap(src)

	got, err := r.ReadRange(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("read with transient failures should succeed after retries: %v\n", err)
	}
	if !bytes.Equal(got, data[:100]) {
		t.Errorf("retried read returned wrong bytes\n")
	}
}

func TestTransportRetriesExhausted(t *testing.T) {
	defer storage.SetRetryDelaysForTesting()()

	data := patternData(10000)
	src := tests.NewMemReader("obj", data)
	src.TransientFailures = 1000
	cache := storage.NewBlockCache(4096, 1<<20, 0)
	r := cache.Wrap(src)

	_, err := r.ReadRange(context.Background(), 0, 100)
	if err == nil {
		t.Fatalf("read should fail once retries are exhausted\n")
	}
	if kind := wsi.KindOf(err); kind != wsi.ErrConnection {
		t.Errorf("expected connection error after exhausted retries, got %s\n", kind)
	}

	// A later read may retry afresh once the failure clears.
	src.TransientFailures = 0
	if _, err := r.ReadRange(context.Background(), 0, 100); err != nil {
		t.Errorf("read after failure cleared should succeed: %v\n", err)
	}
}

func TestByteBudgetEviction(t *testing.T) {
	data := patternData(100000)
	src := tests.NewMemReader("obj", data)
	cache := storage.NewBlockCache(4096, 16384, 0) // room for 4 blocks
	r := cache.Wrap(src)
	ctx := context.Background()

	for offset := int64(0); offset+4096 <= int64(len(data)); offset += 4096 {
		if _, err := r.ReadRange(ctx, offset, 4096); err != nil {
			t.Fatalf("ReadRange at %d failed: %v\n", offset, err)
		}
		if _, used := cache.Usage(); used > 16384 {
			t.Fatalf("cache exceeded byte budget: %d bytes\n", used)
		}
	}
	if blocks, _ := cache.Usage(); blocks > 4 {
		t.Errorf("cache holds %d blocks, budget allows 4\n", blocks)
	}
}

func TestBlockCountEviction(t *testing.T) {
	data := patternData(100000)
	src := tests.NewMemReader("obj", data)
	cache := storage.NewBlockCache(4096, 0, 3)
	r := cache.Wrap(src)
	ctx := context.Background()

	for offset := int64(0); offset+4096 <= int64(len(data)); offset += 4096 {
		if _, err := r.ReadRange(ctx, offset, 4096); err != nil {
			t.Fatalf("ReadRange at %d failed: %v\n", offset, err)
		}
	}
	if blocks, _ := cache.Usage(); blocks > 3 {
		t.Errorf("cache holds %d blocks, capacity is 3\n", blocks)
	}
}

func TestReadRangeOutOfBounds(t *testing.T) {
	src := tests.NewMemReader("obj", patternData(1000))
	cache := storage.NewBlockCache(256, 1<<20, 0)
	r := cache.Wrap(src)

	if _, err := r.ReadRange(context.Background(), 900, 200); err == nil {
		t.Errorf("out-of-bounds read should fail\n")
	}
	if _, err := r.ReadRange(context.Background(), 0, 0); err == nil {
		t.Errorf("zero-length read should fail\n")
	}
}
