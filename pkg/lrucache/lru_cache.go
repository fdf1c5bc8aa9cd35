package lrucache

import (
	"sync"
)

type cacheEntry[K comparable] struct {
	value any
	prev  *cacheEntry[K]
	next  *cacheEntry[K]
	key   K
}

// LRUCache is a size bounded cache evicting the least recently used entry.
// Plain Get does not update recency, only GetAndPromote and Put do, which
// keeps hot reads on the shared lock.
type LRUCache[K comparable] struct {
	entries map[K]*cacheEntry[K]
	head    *cacheEntry[K]
	tail    *cacheEntry[K]
	maxSize int
	mu      sync.RWMutex
}

func New[K comparable](maxSize int) *LRUCache[K] {
	return &LRUCache[K]{
		entries: make(map[K]*cacheEntry[K]),
		maxSize: maxSize,
	}
}

func (c *LRUCache[K]) Get(key K) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.value, true
}

// GetAndPromote returns the value and marks it most recently used.
func (c *LRUCache[K]) GetAndPromote(key K) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(entry)
	return entry.value, true
}

// Put stores the value. An existing entry is only moved to the front when
// promote is set, new entries always start as most recently used.
func (c *LRUCache[K]) Put(key K, value any, promote bool) {
	if c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if already exists
	if entry, ok := c.entries[key]; ok {
		entry.value = value
		if promote {
			c.moveToFront(entry)
		}
		return
	}

	entry := &cacheEntry[K]{
		value: value,
		key:   key,
	}
	c.entries[key] = entry
	c.addToFront(entry)

	// Evict if over capacity
	if len(c.entries) > c.maxSize {
		c.evictLRU()
	}
}

func (c *LRUCache[K]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *LRUCache[K]) moveToFront(entry *cacheEntry[K]) {
	if entry == c.head {
		return
	}

	// Remove from current position
	if entry.prev != nil {
		entry.prev.next = entry.next
	}
	if entry.next != nil {
		entry.next.prev = entry.prev
	}
	if entry == c.tail {
		c.tail = entry.prev
	}

	c.addToFront(entry)
}

func (c *LRUCache[K]) addToFront(entry *cacheEntry[K]) {
	entry.next = c.head
	entry.prev = nil

	if c.head != nil {
		c.head.prev = entry
	}
	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *LRUCache[K]) evictLRU() {
	if c.tail == nil {
		return
	}

	oldTail := c.tail
	c.tail = oldTail.prev

	if c.tail != nil {
		c.tail.next = nil
	} else {
		c.head = nil
	}

	delete(c.entries, oldTail.key)
}
