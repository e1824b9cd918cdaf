// Package workflow provides the built-in workflow graphs and a bounded
// cache for their compiled forms.
package workflow

import (
	"sync"

	"github.com/winhok/QAchatBot-sub001/graph"
)

// defaultCacheCapacity bounds the number of compiled workflows kept per
// cache instance.
const defaultCacheCapacity = 16

// Cache is a bounded FIFO cache of compiled workflows, typically keyed by
// model identifier. It is owned by the constructing service; there is no
// process-wide instance.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*graph.Graph
	order    []string
}

// NewCache creates a cache holding at most capacity compiled workflows.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*graph.Graph),
	}
}

// Get returns the cached workflow for the key, if present.
func (c *Cache) Get(key string) (*graph.Graph, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.entries[key]
	return g, ok
}

// Put stores a compiled workflow, evicting the oldest entry when full.
func (c *Cache) Put(key string, g *graph.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; exists {
		c.entries[key] = g
		return
	}
	if len(c.order) >= c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = g
	c.order = append(c.order, key)
}

// GetOrCompile returns the cached workflow for the key, compiling and
// caching it on a miss.
func (c *Cache) GetOrCompile(key string, compile func() (*graph.Graph, error)) (*graph.Graph, error) {
	if g, ok := c.Get(key); ok {
		return g, nil
	}
	g, err := compile()
	if err != nil {
		return nil, err
	}
	c.Put(key, g)
	return g, nil
}

// Len returns the number of cached workflows.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
