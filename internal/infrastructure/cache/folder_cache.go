package cache

import "sync"

// FolderCache maps folder paths to document-store folder ids so repeated
// filings of the same month don't re-resolve the folder tree.
type FolderCache struct {
	mu  sync.RWMutex
	ids map[string]string
}

// NewFolderCache creates an empty folder-id cache.
func NewFolderCache() *FolderCache {
	return &FolderCache{ids: make(map[string]string)}
}

// Get returns the cached folder id for a path.
func (c *FolderCache) Get(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.ids[path]
	return id, ok
}

// Set stores a folder id under a path.
func (c *FolderCache) Set(path, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids[path] = id
}

// Clear empties the cache.
func (c *FolderCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ids = make(map[string]string)
}
