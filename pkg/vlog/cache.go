package vlog

import (
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/valyx/valog/pkg/codec"
)

// lruCache is the default Cache implementation, an entry-count-bounded LRU.
// The size hint is accepted for contract compatibility; custom
// byte-budgeted caches can honor it.
type lruCache struct {
	inner *lru.Cache[codec.Position, []byte]
}

// NewLRUCache returns a Cache holding up to capacity entries.
func NewLRUCache(capacity int) (Cache, error) {
	inner, err := lru.New[codec.Position, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &lruCache{inner: inner}, nil
}

func (c *lruCache) Lookup(pos codec.Position) ([]byte, bool) {
	return c.inner.Get(pos)
}

func (c *lruCache) Insert(pos codec.Position, data []byte, sizeHint int) {
	_ = sizeHint
	c.inner.Add(pos, data)
}

func (c *lruCache) Peek(pos codec.Position) ([]byte, bool) {
	return c.inner.Peek(pos)
}

func (c *lruCache) Remove(pos codec.Position) {
	c.inner.Remove(pos)
}

// fileHandleCache keeps read handles for cold log and bin files open,
// closing the least recently used handle on eviction.
type fileHandleCache struct {
	inner *lru.Cache[string, *os.File]
}

func newFileHandleCache(capacity int) (*fileHandleCache, error) {
	inner, err := lru.NewWithEvict[string, *os.File](capacity, func(_ string, f *os.File) {
		_ = f.Close()
	})
	if err != nil {
		return nil, err
	}
	return &fileHandleCache{inner: inner}, nil
}

// get returns an open read handle for path, opening and caching one on miss.
func (c *fileHandleCache) get(path string) (*os.File, error) {
	if f, ok := c.inner.Get(path); ok {
		return f, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	c.inner.Add(path, f)
	return f, nil
}

// drop closes and forgets the handle for path, if cached. Used when GC
// deletes a file.
func (c *fileHandleCache) drop(path string) {
	c.inner.Remove(path)
}

// close releases every cached handle.
func (c *fileHandleCache) close() {
	c.inner.Purge()
}
