// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package blockcache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/gomlx/hlo/types/status"
)

// fakeClock is a settable clock with a one second resolution.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) SetSeconds(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(seconds, 0)
}

// filledFetcher returns full blocks filled with 'x', counting the calls.
func filledFetcher(calls *int) Fetcher {
	var mu sync.Mutex
	return func(_ context.Context, _ string, _ int64, n int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		*calls++
		return bytes.Repeat([]byte{'x'}, n), nil
	}
}

func TestPassThrough(t *testing.T) {
	const (
		wantFilename = "foo/bar"
		wantOffset   = 42
		wantN        = 1024
	)
	calls := 0
	fetcher := func(_ context.Context, filename string, offset int64, n int) ([]byte, error) {
		assert.Equal(t, wantFilename, filename)
		assert.Equal(t, int64(wantOffset), offset)
		assert.Equal(t, wantN, n)
		calls++
		return bytes.Repeat([]byte{'x'}, n), nil
	}
	ctx := context.Background()
	for i, cache := range []*Cache{
		New(fetcher, 1, 0, 0),
		New(fetcher, 0, 1, 0),
		New(fetcher, 0, 0, 0),
	} {
		require.True(t, cache.IsPassThrough())
		got, err := cache.Read(ctx, wantFilename, wantOffset, wantN)
		require.NoError(t, err)
		require.Len(t, got, wantN)
		require.Equal(t, i+1, calls)
		cache.Close()
	}
}

func TestEmptyRead(t *testing.T) {
	calls := 0
	cache := New(filledFetcher(&calls), 16, 32, 0)
	defer cache.Close()
	got, err := cache.Read(context.Background(), "a", 5, 0)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, calls)
}

func TestBlockAlignment(t *testing.T) {
	const size = 256
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i)
	}
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		if offset >= size {
			return nil, nil
		}
		return buf[offset:min(offset+int64(n), size)], nil
	}
	ctx := context.Background()
	for blockSize := 2; blockSize <= 4; blockSize++ {
		cache := New(fetcher, blockSize, int64(blockSize), 0)
		for offset := int64(0); offset < 10; offset++ {
			for n := blockSize - 2; n <= blockSize+2; n++ {
				got, err := cache.Read(ctx, "", offset, n)
				require.NoError(t, err, "block size = %d, offset = %d, n = %d", blockSize, offset, n)
				if n == 0 {
					require.Empty(t, got)
					continue
				}
				want := buf[offset:min(offset+int64(n), size)]
				require.Equal(t, want, got, "block size = %d, offset = %d, n = %d", blockSize, offset, n)
			}
		}
		cache.Close()
	}
}

func TestAlignedFetches(t *testing.T) {
	const blockSize = 16
	var offsets []int64
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		require.Equal(t, blockSize, n)
		offsets = append(offsets, offset)
		return make([]byte, n), nil
	}
	cache := New(fetcher, blockSize, 1024, 0)
	defer cache.Close()
	got, err := cache.Read(context.Background(), "a", 10, 40)
	require.NoError(t, err)
	require.Len(t, got, 40)
	require.Equal(t, []int64{0, 16, 32, 48}, offsets)
}

func TestCacheHits(t *testing.T) {
	const (
		blockSize  = 16
		blockCount = 256
	)
	seen := make(map[int64]bool)
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		require.Equal(t, blockSize, n)
		require.Zero(t, offset%blockSize)
		require.False(t, seen[offset], "offset %d fetched twice", offset)
		seen[offset] = true
		return bytes.Repeat([]byte{'x'}, n), nil
	}
	cache := New(fetcher, blockSize, blockCount*blockSize, 0)
	defer cache.Close()
	ctx := context.Background()
	for range 2 {
		for j := range int64(blockCount) {
			_, err := cache.Read(ctx, "", blockSize*j, blockSize)
			require.NoError(t, err)
		}
	}
	require.Len(t, seen, blockCount)
	require.Equal(t, int64(blockCount*blockSize), cache.CacheSize())
}

func TestOutOfRange(t *testing.T) {
	// A 24 bytes file read in blocks of 16 bytes.
	const (
		blockSize = 16
		fileSize  = 24
	)
	var firstBlock, secondBlock bool
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		require.Equal(t, blockSize, n)
		switch offset {
		case 0:
			firstBlock = true
			return bytes.Repeat([]byte{'x'}, n), nil
		case blockSize:
			secondBlock = true
			return bytes.Repeat([]byte{'x'}, fileSize-blockSize), nil
		}
		return nil, nil
	}
	cache := New(fetcher, blockSize, blockSize, 0)
	defer cache.Close()
	ctx := context.Background()

	got, err := cache.Read(ctx, "", 0, blockSize)
	require.NoError(t, err)
	require.True(t, firstBlock)
	require.Len(t, got, blockSize)

	// Offset 28 is aligned to the second block, but it is past the end of the file.
	got, err = cache.Read(ctx, "", fileSize+4, 4)
	require.Error(t, err)
	require.Equal(t, codes.OutOfRange, status.Code(err))
	require.True(t, secondBlock)
	require.Empty(t, got)

	// The second block is now a cache hit.
	secondBlock = false
	got, err = cache.Read(ctx, "", blockSize, blockSize)
	require.NoError(t, err)
	require.False(t, secondBlock)
	require.Len(t, got, fileSize-blockSize)
}

func TestInconsistent(t *testing.T) {
	const blockSize = 16
	// Every fetch returns a single byte.
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		require.Equal(t, blockSize, n)
		require.Zero(t, offset%blockSize)
		return []byte{'x'}, nil
	}
	cache := New(fetcher, blockSize, 2*blockSize, 0)
	defer cache.Close()
	ctx := context.Background()

	got, err := cache.Read(ctx, "", blockSize, blockSize)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// The first block is short, but a later block is already cached.
	_, err = cache.Read(ctx, "", 0, blockSize)
	require.Error(t, err)
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestInconsistentBeforeOutOfRange(t *testing.T) {
	const blockSize = 8
	fetcher := func(_ context.Context, _ string, _ int64, _ int) ([]byte, error) {
		return []byte{'x'}, nil
	}
	cache := New(fetcher, blockSize, 4*blockSize, 0)
	defer cache.Close()
	ctx := context.Background()

	_, err := cache.Read(ctx, "f", blockSize, blockSize)
	require.NoError(t, err)
	require.Equal(t, int64(1), cache.CacheSize())

	// Offset 4 is past the single byte of the first block, but the short block itself is inconsistent
	// with the cached block at offset 8.
	_, err = cache.Read(ctx, "f", 4, 2)
	require.Error(t, err)
	require.Equal(t, codes.Internal, status.Code(err))
	require.Equal(t, int64(1), cache.CacheSize(), "inconsistent block should not be cached")
}

func TestFetchError(t *testing.T) {
	fetcher := func(_ context.Context, _ string, _ int64, _ int) ([]byte, error) {
		return nil, status.Errorf(codes.Unavailable, "backend down")
	}
	cache := New(fetcher, 8, 16, 0)
	defer cache.Close()
	_, err := cache.Read(context.Background(), "a", 0, 4)
	require.Error(t, err)
	require.Equal(t, codes.Unavailable, status.Code(err))
	require.Zero(t, cache.CacheSize())
}

func TestLRU(t *testing.T) {
	const blockSize = 16
	var expected []int64
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		require.Equal(t, blockSize, n)
		require.NotEmpty(t, expected, "unexpected fetch at offset %d", offset)
		require.Equal(t, expected[0], offset)
		expected = expected[1:]
		return bytes.Repeat([]byte{'x'}, n), nil
	}
	cache := New(fetcher, blockSize, 2*blockSize, 0)
	defer cache.Close()
	ctx := context.Background()
	read := func(offset int64) {
		_, err := cache.Read(ctx, "", offset, 1)
		require.NoError(t, err)
	}

	// Miss then hit.
	expected = append(expected, 0)
	read(0)
	read(0)
	expected = append(expected, blockSize)
	read(blockSize)
	read(blockSize)
	// Evicts the block at 0.
	expected = append(expected, 2*blockSize)
	read(2 * blockSize)
	read(2 * blockSize)
	// Evicts the block at blockSize.
	expected = append(expected, 0)
	read(0)
	// Promotes the block at 2*blockSize, so the block at 0 is evicted next.
	read(2 * blockSize)
	expected = append(expected, blockSize)
	read(blockSize)
	expected = append(expected, 0)
	read(0)
	require.Empty(t, expected)
}

func TestMaxStaleness(t *testing.T) {
	calls := 0
	clock := &fakeClock{}
	clock.SetSeconds(1)
	ctx := context.Background()

	cache := New(filledFetcher(&calls), 8, 16, 2*time.Second, WithClock(clock.Now))
	_, err := cache.Read(ctx, "", 0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	// A block is refetched once it is more than 2 seconds old: every 3 seconds.
	for i := 1; i <= 10; i++ {
		clock.SetSeconds(int64(i + 1))
		_, err = cache.Read(ctx, "", 0, 1)
		require.NoError(t, err)
		require.Equal(t, 1+i/3, calls, "at second %d", i+1)
	}
	cache.Close()

	// Without max staleness blocks never expire.
	calls = 0
	clock.SetSeconds(0)
	cache = New(filledFetcher(&calls), 8, 16, 0, WithClock(clock.Now))
	defer cache.Close()
	_, err = cache.Read(ctx, "", 0, 1)
	require.NoError(t, err)
	clock.SetSeconds(365 * 24 * 60 * 60)
	_, err = cache.Read(ctx, "", 0, 1)
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestRemoveFile(t *testing.T) {
	calls := 0
	// The first block of a file is lower case, the following ones upper case.
	fetcher := func(_ context.Context, filename string, offset int64, n int) ([]byte, error) {
		calls++
		c := filename
		if offset > 0 {
			c = string(bytes.ToUpper([]byte(filename)))
		}
		return bytes.Repeat([]byte(c), n), nil
	}
	const n = 3
	cache := New(fetcher, 8, 32, 0)
	defer cache.Close()
	ctx := context.Background()
	check := func(filename string, offset int64, want string, wantCalls int) {
		t.Helper()
		got, err := cache.Read(ctx, filename, offset, n)
		require.NoError(t, err)
		require.Equal(t, want, string(got))
		require.Equal(t, wantCalls, calls)
	}

	check("a", 0, "aaa", 1)
	check("a", 8, "AAA", 2)
	check("b", 0, "bbb", 3)
	check("b", 8, "BBB", 4)
	// All four blocks are cached.
	check("a", 0, "aaa", 4)
	check("a", 8, "AAA", 4)
	check("b", 0, "bbb", 4)
	check("b", 8, "BBB", 4)

	cache.RemoveFile("a")
	check("b", 0, "bbb", 4)
	check("b", 8, "BBB", 4)
	check("a", 0, "aaa", 5)
	check("a", 8, "AAA", 6)
}

func TestPrune(t *testing.T) {
	calls := 0
	clock := &fakeClock{}
	now := time.Now().Unix()
	clock.SetSeconds(now)
	cache := New(filledFetcher(&calls), 8, 32, time.Second,
		WithClock(clock.Now), WithPruneInterval(10*time.Millisecond))
	defer cache.Close()
	ctx := context.Background()
	read := func(filename string, offset int64) {
		_, err := cache.Read(ctx, filename, offset, 1)
		require.NoError(t, err)
	}

	read("a", 0)
	clock.SetSeconds(now + 1)
	read("b", 0)
	// Evicted together with the first block of "a", although it is not stale itself.
	read("a", 8)
	require.Equal(t, int64(24), cache.CacheSize())
	require.Equal(t, 3, calls)
	read("a", 0)
	read("b", 0)
	read("a", 8)
	require.Equal(t, 3, calls)

	// "a" becomes stale through its first block, "b" is still fresh.
	clock.SetSeconds(now + 2)
	require.Eventually(t, func() bool { return cache.CacheSize() == 8 }, 3*time.Second, 10*time.Millisecond)
	read("b", 0)
	require.Equal(t, 3, calls)

	clock.SetSeconds(now + 3)
	require.Eventually(t, func() bool { return cache.CacheSize() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestConcurrentReads(t *testing.T) {
	const blockSize = 8
	content := []byte("the quick brown fox jumps over the lazy dog")
	fetcher := func(_ context.Context, _ string, offset int64, n int) ([]byte, error) {
		if offset >= int64(len(content)) {
			return nil, nil
		}
		return content[offset:min(offset+int64(n), int64(len(content)))], nil
	}
	cache := New(fetcher, blockSize, 3*blockSize, 0)
	defer cache.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			offset := int64(i % (len(content) - 5))
			got, err := cache.Read(context.Background(), "fox", offset, 5)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, content[offset:offset+5]) {
				errs <- errors.Errorf("offset %d: got %q", offset, got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, cache.CacheSize(), int64(3*blockSize))
}
