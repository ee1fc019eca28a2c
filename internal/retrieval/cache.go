package retrieval

import "sync"

// embedCache is a bounded map from exact query text to embedding vector.
// Repeated questions ("how do I write a resume?") are common enough that
// skipping the embedding round trip is worth the memory. Eviction is
// whole-cache reset at capacity, which is adequate at the sizes used here.
type embedCache struct {
	mu      sync.Mutex
	entries map[string][]float32
	maxSize int
}

func newEmbedCache(maxSize int) *embedCache {
	return &embedCache{
		entries: make(map[string][]float32, maxSize),
		maxSize: maxSize,
	}
}

func (c *embedCache) get(query string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	embedding, ok := c.entries[query]
	return embedding, ok
}

func (c *embedCache) put(query string, embedding []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxSize {
		c.entries = make(map[string][]float32, c.maxSize)
	}
	c.entries[query] = embedding
}

func (c *embedCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
