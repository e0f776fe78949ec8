// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package blockcache implements an LRU cache of fixed-size, offset-aligned blocks of remote files.
//
// Reads of arbitrary byte ranges are rewritten into block-aligned fetches, each of which is cached
// independently. Blocks are evicted in least-recently-used order when the cache exceeds its capacity,
// and whole files are evicted once any of their blocks is older than the configured max staleness.
//
// Example:
//
//	cache := blockcache.New(fetcher, 1<<20, 64<<20, 10*time.Minute)
//	defer cache.Close()
//	data, err := cache.Read(ctx, "gs://bucket/object", offset, 4096)
package blockcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/types/status"
	"github.com/gomlx/hlo/types/xsync"
)

// Fetcher reads up to n bytes of filename starting at offset.
//
// Returning fewer than n bytes (possibly zero) signals the end of the file.
type Fetcher func(ctx context.Context, filename string, offset int64, n int) ([]byte, error)

// DefaultPruneInterval is how often the pruning goroutine looks for stale files.
const DefaultPruneInterval = time.Second

type blockKey struct {
	filename string
	offset   int64
}

type block struct {
	key       blockKey
	data      []byte
	timestamp time.Time
	lru, lra  *list.Element
}

// Cache is a block cache of remote files. It is safe for concurrent use.
//
// The fetcher is never called while holding the cache lock, so concurrent misses of the same block may fetch it
// more than once.
type Cache struct {
	fetcher      Fetcher
	blockSize    int
	maxBytes     int64
	maxStaleness time.Duration

	now           func() time.Time
	pruneInterval time.Duration
	stop, stopped *xsync.Latch

	mu        sync.Mutex
	blocks    map[blockKey]*block
	files     map[string]map[int64]*block
	lruList   *list.List // Most recently used at the front.
	lraList   *list.List // Most recently added at the front.
	cacheSize int64
}

// Option configures a Cache.
type Option func(c *Cache)

// WithClock sets the clock used to timestamp blocks. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithPruneInterval sets how often stale files are looked for. Defaults to DefaultPruneInterval.
func WithPruneInterval(interval time.Duration) Option {
	return func(c *Cache) { c.pruneInterval = interval }
}

// New creates a cache of blocks of blockSize bytes, holding at most maxBytes bytes.
//
// If blockSize or maxBytes is 0, the cache is a pass-through: every read goes straight to the fetcher.
// If maxStaleness is positive, a background goroutine evicts files whose oldest block is older than it,
// and Close must be called to stop it.
func New(fetcher Fetcher, blockSize int, maxBytes int64, maxStaleness time.Duration, options ...Option) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		blockSize:     blockSize,
		maxBytes:      maxBytes,
		maxStaleness:  maxStaleness,
		now:           time.Now,
		pruneInterval: DefaultPruneInterval,
		stop:          xsync.NewLatch(),
		stopped:       xsync.NewLatch(),
		blocks:        make(map[blockKey]*block),
		files:         make(map[string]map[int64]*block),
		lruList:       list.New(),
		lraList:       list.New(),
	}
	for _, option := range options {
		option(c)
	}
	if maxStaleness > 0 {
		go c.pruneLoop()
	} else {
		c.stopped.Trigger()
	}
	return c
}

// Close stops the pruning goroutine, if any, and waits for it to exit. Cached blocks are dropped.
func (c *Cache) Close() {
	c.stop.Trigger()
	c.stopped.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	for filename := range c.files {
		c.removeFileLocked(filename)
	}
}

// IsPassThrough returns whether the cache is disabled, forwarding every read to the fetcher.
func (c *Cache) IsPassThrough() bool {
	return c.blockSize <= 0 || c.maxBytes <= 0
}

// CacheSize returns the number of bytes currently cached.
func (c *Cache) CacheSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheSize
}

// Read returns up to n bytes of filename starting at offset.
//
// A read that extends past the end of the file returns the bytes available. A read starting at or past the end
// of the file fails with an OutOfRange error. If a short block is found before a block already cached for the
// same file, the file changed under the cache and Read fails with an Internal error.
func (c *Cache) Read(ctx context.Context, filename string, offset int64, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if c.IsPassThrough() {
		return c.fetcher(ctx, filename, offset, n)
	}
	blockSize := int64(c.blockSize)
	start := blockSize * (offset / blockSize)
	finish := blockSize * ((offset + int64(n)) / blockSize)
	if finish < offset+int64(n) {
		finish += blockSize
	}

	out := make([]byte, 0, n)
	for pos := start; pos < finish; pos += blockSize {
		key := blockKey{filename, pos}
		data, err := c.lookupOrFetch(ctx, key)
		if err != nil {
			return nil, err
		}
		short := len(data) < c.blockSize
		if short && c.hasLaterBlock(key) {
			return nil, inconsistentError(key)
		}
		blockEnd := pos + int64(len(data))
		if offset >= blockEnd {
			return nil, status.OutOfRangef("EOF at offset %d in file %q at position %d with data size %d",
				offset, filename, pos, len(data))
		}
		begin := max(offset-pos, 0)
		end := min(blockEnd, offset+int64(n)) - pos
		if begin < end {
			out = append(out, data[begin:end]...)
		}
		if short {
			// End of file.
			break
		}
	}

	c.mu.Lock()
	c.trimLocked()
	c.mu.Unlock()
	return out, nil
}

// lookupOrFetch returns the contents of the block, fetching it on a miss.
func (c *Cache) lookupOrFetch(ctx context.Context, key blockKey) ([]byte, error) {
	c.mu.Lock()
	b, found := c.blocks[key]
	if found && c.maxStaleness > 0 && c.now().Sub(b.timestamp) > c.maxStaleness {
		klog.V(2).Infof("block cache: %q is stale, evicting it", key.filename)
		c.removeFileLocked(key.filename)
		found = false
	}
	if found {
		c.lruList.MoveToFront(b.lru)
		data := b.data
		c.mu.Unlock()
		cacheHits.Inc()
		return data, nil
	}
	c.mu.Unlock()

	cacheMisses.Inc()
	data, err := c.fetcher(ctx, key.filename, key.offset, c.blockSize)
	if err != nil {
		return nil, errors.WithMessagef(err, "fetching block at offset %d of %q", key.offset, key.filename)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(data) < c.blockSize && c.hasLaterBlockLocked(key) {
		return nil, inconsistentError(key)
	}
	if previous, found := c.blocks[key]; found {
		c.removeBlockLocked(previous)
	}
	b = &block{key: key, data: data, timestamp: c.now()}
	b.lru = c.lruList.PushFront(b)
	b.lra = c.lraList.PushFront(b)
	c.blocks[key] = b
	fileBlocks := c.files[key.filename]
	if fileBlocks == nil {
		fileBlocks = make(map[int64]*block)
		c.files[key.filename] = fileBlocks
	}
	fileBlocks[key.offset] = b
	c.cacheSize += int64(len(data))
	cachedBytes.Add(float64(len(data)))
	return data, nil
}

// inconsistentError reports a short block followed by cached blocks of the same file: the file shrank or the
// fetcher is not deterministic.
func inconsistentError(key blockKey) error {
	return status.Internalf("block cache contents are inconsistent: file %q has a short block at %d followed by cached blocks",
		key.filename, key.offset)
}

func (c *Cache) hasLaterBlock(key blockKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLaterBlockLocked(key)
}

func (c *Cache) hasLaterBlockLocked(key blockKey) bool {
	for offset := range c.files[key.filename] {
		if offset > key.offset {
			return true
		}
	}
	return false
}

// RemoveFile evicts all the cached blocks of filename.
func (c *Cache) RemoveFile(filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeFileLocked(filename)
}

func (c *Cache) removeFileLocked(filename string) {
	for _, b := range c.files[filename] {
		c.removeBlockLocked(b)
	}
}

func (c *Cache) removeBlockLocked(b *block) {
	c.lruList.Remove(b.lru)
	c.lraList.Remove(b.lra)
	delete(c.blocks, b.key)
	fileBlocks := c.files[b.key.filename]
	delete(fileBlocks, b.key.offset)
	if len(fileBlocks) == 0 {
		delete(c.files, b.key.filename)
	}
	c.cacheSize -= int64(len(b.data))
	cachedBytes.Sub(float64(len(b.data)))
	cacheEvictions.Inc()
}

// trimLocked evicts least recently used blocks until the cache fits its capacity.
func (c *Cache) trimLocked() {
	for c.cacheSize > c.maxBytes && c.lruList.Len() > 0 {
		c.removeBlockLocked(c.lruList.Back().Value.(*block))
	}
}

// pruneLoop evicts stale files until the cache is closed.
func (c *Cache) pruneLoop() {
	defer c.stopped.Trigger()
	ticker := time.NewTicker(c.pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop.WaitChan():
			return
		case <-ticker.C:
			c.prune()
		}
	}
}

// prune evicts every file whose least recently added block is stale.
func (c *Cache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for c.lraList.Len() > 0 {
		oldest := c.lraList.Back().Value.(*block)
		if now.Sub(oldest.timestamp) <= c.maxStaleness {
			break
		}
		before := c.cacheSize
		c.removeFileLocked(oldest.key.filename)
		klog.V(2).Infof("block cache: pruned stale file %q, freed %s",
			oldest.key.filename, humanize.Bytes(uint64(before-c.cacheSize)))
	}
}
