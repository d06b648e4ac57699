package engine

import "sync"

// Cache holds parsed formulas keyed by their text. It is owned by the
// caller (typically the plan entity), never by the engine, so there is no
// global mutable state. Invalidate when a step's expression text changes.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*Expression
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]*Expression)}
}

// Get returns the parsed form of text, parsing on first use.
func (c *Cache) Get(text string) (*Expression, error) {
	c.mu.RLock()
	expr, ok := c.entries[text]
	c.mu.RUnlock()
	if ok {
		return expr, nil
	}

	expr, err := Parse(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[text] = expr
	c.mu.Unlock()
	return expr, nil
}

// Invalidate drops the cached parse for text.
func (c *Cache) Invalidate(text string) {
	c.mu.Lock()
	delete(c.entries, text)
	c.mu.Unlock()
}

// Len returns the number of cached formulas.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
