package ratelimit

import (
	"container/list"
	"sync"
	"time"
)

// bucketCache is a bounded key→bucket map with LRU eviction on size and
// TTL eviction on inactivity, so a churning fleet cannot grow the bucket
// map without bound.
type bucketCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int
	ttl     time.Duration
}

type cacheEntry struct {
	key      string
	bucket   *TokenBucket
	lastSeen time.Time
}

func newBucketCache(maxSize int, ttl time.Duration) *bucketCache {
	return &bucketCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// getOrCreate returns the bucket for key, creating it with newBucket when
// absent. The entry is marked as used.
func (c *bucketCache) getOrCreate(key string, newBucket func() *TokenBucket, now time.Time) *TokenBucket {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.lastSeen = now
		c.order.MoveToFront(el)
		return entry.bucket
	}

	entry := &cacheEntry{key: key, bucket: newBucket(), lastSeen: now}
	c.entries[key] = c.order.PushFront(entry)

	// Evict least recently used past the size cap.
	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeElement(oldest)
	}

	return entry.bucket
}

// sweep drops entries idle for longer than the TTL and returns how many
// were removed.
func (c *bucketCache) sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}

	removed := 0
	for el := c.order.Back(); el != nil; {
		entry := el.Value.(*cacheEntry)
		if now.Sub(entry.lastSeen) <= c.ttl {
			// Entries are ordered by recency; everything further
			// forward is newer.
			break
		}
		prev := el.Prev()
		c.removeElement(el)
		removed++
		el = prev
	}
	return removed
}

func (c *bucketCache) removeElement(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	c.order.Remove(el)
	delete(c.entries, entry.key)
}

func (c *bucketCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
