// Package framecache memoizes rasterized frames in a byte-budgeted LRU.
//
// A Cache is constructed explicitly and handed to every worker that should
// share it; there is no process-wide instance.
package framecache

import (
	"container/list"
	"fmt"
	"image"
	"sync"
)

// DefaultCapacity is the byte budget used when none is configured.
const DefaultCapacity int64 = 256 * 1024 * 1024

// Key identifies one rasterized frame. Equality is structural.
type Key struct {
	Anim   string // animation identity (usually the resolved source path)
	Frame  int    // quantized frame index
	Width  int
	Height int
}

func (k Key) String() string {
	return fmt.Sprintf("%s#%d@%dx%d", k.Anim, k.Frame, k.Width, k.Height)
}

// Quantize rounds frame down to the caching granularity step.
// A step below 2 disables quantization.
func Quantize(frame float64, step int) int {
	qf := int(frame)
	if frame < 0 {
		qf = 0
	}
	if step > 1 {
		qf = (qf / step) * step
	}
	return qf
}

type entry struct {
	key   Key
	img   *image.RGBA
	bytes int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Len       int
	Used      int64
	Capacity  int64
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is an LRU of rasterized frames bounded by total byte size.
//
// Every exported method is a single critical section under one mutex.
// Cached images must be treated as read-only by callers.
type Cache struct {
	mu       sync.Mutex
	items    map[Key]*list.Element
	lru      *list.List // front = most recently used
	used     int64
	capacity int64

	hits      uint64
	misses    uint64
	evictions uint64

	// users counts players currently rendering each animation key.
	users map[string]int
}

// New creates a cache with the given byte budget. A non-positive budget
// falls back to DefaultCapacity.
func New(capacity int64) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		items:    make(map[Key]*list.Element),
		lru:      list.New(),
		capacity: capacity,
		users:    make(map[string]int),
	}
}

// Get returns the cached frame for key and marks it most recently used.
// A miss has no side effects on the LRU order.
func (c *Cache) Get(key Key) (*image.RGBA, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(el)
	return el.Value.(*entry).img, true
}

// Put stores img under key. Zero-sized or empty images are ignored so failed
// renders never occupy the cache. Re-putting a key replaces its buffer.
func (c *Cache) Put(key Key, img *image.RGBA, bytes int64) {
	if bytes <= 0 || img == nil || len(img.Pix) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.used -= e.bytes
		e.img = img
		e.bytes = bytes
		c.used += bytes
		c.lru.MoveToFront(el)
	} else {
		c.items[key] = c.lru.PushFront(&entry{key: key, img: img, bytes: bytes})
		c.used += bytes
	}
	c.evictLocked()
}

// SetCapacity changes the byte budget and evicts immediately if needed.
func (c *Cache) SetCapacity(bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if bytes < 0 {
		bytes = 0
	}
	c.capacity = bytes
	c.evictLocked()
}

// Clear drops every entry. User counts are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[Key]*list.Element)
	c.lru.Init()
	c.used = 0
}

// Len returns the number of cached frames.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Used returns the total bytes of all live entries.
func (c *Cache) Used() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Capacity returns the current byte budget.
func (c *Cache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Len:       len(c.items),
		Used:      c.used,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Retain registers one more player rendering anim and returns the new count.
func (c *Cache) Retain(anim string) int {
	if anim == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users[anim]++
	return c.users[anim]
}

// Release undoes a Retain and returns the remaining count.
func (c *Cache) Release(anim string) int {
	if anim == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.users[anim] - 1
	if n <= 0 {
		delete(c.users, anim)
		return 0
	}
	c.users[anim] = n
	return n
}

// Users returns how many players currently render anim.
func (c *Cache) Users(anim string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[anim]
}

func (c *Cache) evictLocked() {
	for c.used > c.capacity && c.lru.Len() > 0 {
		el := c.lru.Back()
		e := el.Value.(*entry)
		c.lru.Remove(el)
		delete(c.items, e.key)
		c.used -= e.bytes
		c.evictions++
	}
}
