package cache

import (
	"container/list"
	"sync"
	"time"
)

// lruEntry is one cached value with its expiry.
type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// LRU is a bounded in-process cache with per-entry expiry.
// Eviction is least-recently-used once maxEntries is reached; expired
// entries are dropped lazily on access and eagerly by Sweep.
type LRU struct {
	mu         sync.Mutex
	maxEntries int
	ll         *list.List
	items      map[string]*list.Element
}

// NewLRU creates an LRU cache holding at most maxEntries entries.
func NewLRU(maxEntries int) *LRU {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &LRU{
		maxEntries: maxEntries,
		ll:         list.New(),
		items:      make(map[string]*list.Element),
	}
}

// Get returns the value for key, or nil and false on a miss or expiry.
func (c *LRU) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.removeElement(el)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

// Set stores a value with the given TTL, evicting the oldest entry if full.
func (c *LRU) Set(key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		entry := el.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	el := c.ll.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	for c.ll.Len() > c.maxEntries {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}
}

// Delete removes a key. Returns true if it was present.
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeElement(el)
	return true
}

// Exists reports whether a non-expired entry is present.
func (c *LRU) Exists(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Len returns the current entry count.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Sweep drops expired entries and returns how many were removed.
func (c *LRU) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*lruEntry).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Purge removes every entry.
func (c *LRU) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

func (c *LRU) removeElement(el *list.Element) {
	entry := el.Value.(*lruEntry)
	c.ll.Remove(el)
	delete(c.items, entry.key)
}
