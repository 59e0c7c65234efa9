package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"studyrag/internal/domain"
	"studyrag/internal/port"
)

const (
	DefaultMaxSize = 128
	DefaultTTL     = 10 * time.Minute
)

// QueryCache is an LRU of retrieval results with a per-entry TTL. Entries
// are scoped to a generation, normally a bundle build id, and are invalid
// once the generation changes.
type QueryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      []string
	maxSize    int
	ttl        time.Duration
	generation string
	now        func() time.Time
}

type cacheEntry struct {
	results    domain.RetrievalResult
	timestamp  time.Time
	generation string
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func cacheKey(generation, query string, topK int) string {
	h := sha256.New()
	h.Write([]byte(generation))
	h.Write([]byte{0})
	h.Write([]byte(query))
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(topK))
	h.Write(k[:])
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// SetGeneration scopes subsequent lookups to generation. Entries stored
// under another generation are dropped.
func (c *QueryCache) SetGeneration(generation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation == c.generation {
		return
	}
	c.generation = generation
	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *QueryCache) Get(query string, topK int) (domain.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(c.generation, query, topK)
	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	if c.now().Sub(entry.timestamp) > c.ttl || entry.generation != c.generation {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.moveToEnd(key)
	return clone(entry.results), true
}

func (c *QueryCache) Put(query string, topK int, results domain.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(c.generation, query, topK)
	entry := &cacheEntry{
		results:    clone(results),
		timestamp:  c.now(),
		generation: c.generation,
	}

	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry
		c.moveToEnd(key)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	c.entries[key] = entry
	c.order = append(c.order, key)
}

func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *QueryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *QueryCache) evictOldest() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *QueryCache) moveToEnd(key string) {
	c.removeFromOrder(key)
	c.order = append(c.order, key)
}

func (c *QueryCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func clone(r domain.RetrievalResult) domain.RetrievalResult {
	out := make(domain.RetrievalResult, len(r))
	copy(out, r)
	return out
}

// CachedRetriever answers repeated (query, k) pairs from a QueryCache.
// Errors are never cached.
type CachedRetriever struct {
	retriever port.Retriever
	cache     *QueryCache
}

// NewCachedRetriever scopes cache to generation, which should identify the
// bundle behind retriever.
func NewCachedRetriever(retriever port.Retriever, cache *QueryCache, generation string) *CachedRetriever {
	cache.SetGeneration(generation)
	return &CachedRetriever{
		retriever: retriever,
		cache:     cache,
	}
}

func (r *CachedRetriever) Retrieve(ctx context.Context, query string, k int) (domain.RetrievalResult, error) {
	if results, hit := r.cache.Get(query, k); hit {
		return results, nil
	}

	results, err := r.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return nil, err
	}

	r.cache.Put(query, k, results)
	return results, nil
}
