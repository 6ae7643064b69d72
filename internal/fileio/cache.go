package fileio

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// cacheKey identifies a cached file's content by the triple that changes
// whenever the file does, per §4.4: path, mtime, size.
type cacheKey struct {
	path  string
	mtime time.Time
	size  int64
}

// cache is a small bounded hot-file cache. Eviction is FIFO-on-overflow, not
// LRU, since the read pattern (re-reading the same few files across several
// operations in one session) doesn't need recency-based eviction.
type cache struct {
	mu       sync.Mutex
	capacity int
	order    []cacheKey
	entries  map[cacheKey][]byte
}

func newCache(capacity int) *cache {
	return &cache{capacity: capacity, entries: make(map[cacheKey][]byte)}
}

func (c *cache) getOrLoad(path string, info os.FileInfo, mmapThreshold int64) ([]byte, error) {
	key := cacheKey{path: path, mtime: info.ModTime(), size: info.Size()}

	c.mu.Lock()
	if data, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	data, err := loadFile(path, info.Size(), mmapThreshold)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.order) >= c.capacity && c.capacity > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.order = append(c.order, key)
	c.entries[key] = data
	return data, nil
}

// invalidate drops every cached entry for path regardless of its mtime/size.
// Reads never call it: a write changes the (mtime, size) part of the key, so
// the next read misses the stale entry anyway.
func (c *cache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.path == path {
			delete(c.entries, k)
		}
	}
	kept := c.order[:0]
	for _, k := range c.order {
		if k.path != path {
			kept = append(kept, k)
		}
	}
	c.order = kept
}
