package client

import (
	"cmp"
	"slices"
)

// Cache is a keyed collection where lookups never create entries.
// It is not safe for concurrent use.
type Cache[K cmp.Ordered, V any] struct {
	items map[K]*V
}

func NewCache[K cmp.Ordered, V any]() *Cache[K, V] {
	return &Cache[K, V]{items: make(map[K]*V)}
}

func (c *Cache[K, V]) Get(k K) (*V, bool) {
	v, ok := c.items[k]
	return v, ok
}

// GetOrCreate returns the entry for k, inserting the result of init if absent.
func (c *Cache[K, V]) GetOrCreate(k K, init func() V) *V {
	if v, ok := c.items[k]; ok {
		return v
	}
	v := init()
	c.items[k] = &v
	return &v
}

func (c *Cache[K, V]) Delete(k K) bool {
	_, ok := c.items[k]
	delete(c.items, k)
	return ok
}

func (c *Cache[K, V]) Len() int { return len(c.items) }

// Keys returns the keys in ascending order.
func (c *Cache[K, V]) Keys() []K {
	keys := make([]K, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (c *Cache[K, V]) Clear() { clear(c.items) }
