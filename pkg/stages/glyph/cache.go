package glyph

import (
	"sync"

	"github.com/user/watermark/pkg/pipeline"
)

// Key identifies a rendered mask.
type Key struct {
	Text     string
	FontPath string
	Scale    float64
	Rotation int64 // pipeline.RotationKey
	RefDim   int
}

type entry struct {
	once sync.Once
	mask *pipeline.GlyphMask
	err  error
}

// Cache memoizes masks by key. Concurrent requests for the same key
// render once and share the result.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[Key]*entry)}
}

// Get returns the cached mask for key, calling render on first use.
// Failed renders are not retried for the same key.
func (c *Cache) Get(key Key, render func() (*pipeline.GlyphMask, error)) (*pipeline.GlyphMask, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.mask, e.err = render()
	})
	return e.mask, e.err
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
