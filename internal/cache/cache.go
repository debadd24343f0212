package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type CacheItem struct {
	Value     interface{}
	ExpiresAt time.Time
}

type entry struct {
	key  string
	item CacheItem
}

// Cache is a bounded, process-lifetime cache. When full, the oldest inserted
// key is evicted. A zero ttl means entries never expire.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = oldest insert

	hits   int
	misses int
}

type Stats struct {
	Size   int `json:"size"`
	Hits   int `json:"hits"`
	Misses int `json:"misses"`
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 512
	}
	return &Cache{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *Cache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := CacheItem{Value: value}
	if ttl > 0 {
		item.ExpiresAt = time.Now().Add(ttl)
	}

	// Overwrites keep the original insertion slot.
	if el, ok := c.items[key]; ok {
		el.Value.(*entry).item = item
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
	c.items[key] = c.order.PushBack(&entry{key: key, item: item})
}

func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, exists := c.items[key]
	if !exists {
		c.misses++
		return nil, false
	}

	e := el.Value.(*entry)
	if !e.item.ExpiresAt.IsZero() && time.Now().After(e.item.ExpiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return e.item.Value, true
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.order.Len(), Hits: c.hits, Misses: c.misses}
}

// GenerateKey hashes the given parts into a fixed-size key.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
