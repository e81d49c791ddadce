package storage

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dpshade/pocket-kb/internal/models"
)

// cacheEntry is the parsed form of one file at one content hash
type cacheEntry struct {
	FileHash   string
	Collection models.Collection
}

// ParseCache remembers parsed files by content hash so a reload only
// re-parses files that actually changed
type ParseCache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex // Protects entries from concurrent parsers

	hits   atomic.Int64
	misses atomic.Int64
}

// NewParseCache creates an empty cache
func NewParseCache() *ParseCache {
	return &ParseCache{entries: make(map[string]*cacheEntry)}
}

// Get returns the cached parse of path if its content hash is unchanged
func (c *ParseCache) Get(path, fileHash string) (models.Collection, bool) {
	c.mu.RLock()
	cached, exists := c.entries[path]
	c.mu.RUnlock()

	if !exists || cached.FileHash != fileHash {
		c.misses.Add(1)
		return models.Collection{}, false
	}

	c.hits.Add(1)
	return cloneCollection(cached.Collection), true
}

// Set stores the parse of path at the given content hash
func (c *ParseCache) Set(path, fileHash string, collection models.Collection) {
	c.mu.Lock()
	c.entries[path] = &cacheEntry{
		FileHash:   fileHash,
		Collection: cloneCollection(collection),
	}
	c.mu.Unlock()
}

// Cleanup removes entries under root for files that no longer exist
func (c *ParseCache) Cleanup(root string, existingFiles map[string]bool) {
	prefix := filepath.Clean(root) + string(filepath.Separator)

	c.mu.Lock()
	for path := range c.entries {
		if strings.HasPrefix(path, prefix) && !existingFiles[path] {
			delete(c.entries, path)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of cached files
func (c *ParseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Hits returns how many lookups were served from the cache
func (c *ParseCache) Hits() int64 { return c.hits.Load() }

// Misses returns how many lookups required a parse
func (c *ParseCache) Misses() int64 { return c.misses.Load() }

func cloneCollection(c models.Collection) models.Collection {
	records := make([]models.TemplateRecord, len(c.Records))
	for i, r := range c.Records {
		records[i] = r.Clone()
	}
	c.Records = records
	return c
}
