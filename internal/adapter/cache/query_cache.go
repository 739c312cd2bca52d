package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"semdex/internal/domain"
)

// QueryCache memoizes search results. Entries expire by TTL and are dropped
// wholesale whenever the index generation advances, so a write to the index
// never serves stale results.
type QueryCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	order    []string
	maxSize  int
	ttl      time.Duration
	indexGen uint64
}

type cacheEntry struct {
	results   []domain.ScoredChunk
	timestamp time.Time
	indexGen  uint64
}

func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &QueryCache{
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

func cacheKey(query string, k int, filter map[string]string) string {
	var sb strings.Builder
	sb.WriteString(query)
	fmt.Fprintf(&sb, "|%d", k)

	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "|%s=%s", key, filter[key])
	}

	hash := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(hash[:16])
}

// Get returns a copy of the cached results, so callers may mutate what they
// get back without corrupting later hits.
func (c *QueryCache) Get(query string, k int, filter map[string]string) ([]domain.ScoredChunk, bool) {
	key := cacheKey(query, k, filter)

	c.mu.RLock()
	entry, exists := c.entries[key]
	currentGen := c.indexGen
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if entry.indexGen != currentGen || time.Since(entry.timestamp) > c.ttl {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	results := make([]domain.ScoredChunk, len(entry.results))
	copy(results, entry.results)
	return results, true
}

func (c *QueryCache) Put(query string, k int, filter map[string]string, results []domain.ScoredChunk) {
	key := cacheKey(query, k, filter)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= c.maxSize {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}

	c.entries[key] = &cacheEntry{
		results:   results,
		timestamp: time.Now(),
		indexGen:  c.indexGen,
	}
}

// Invalidate bumps the index generation, expiring every cached entry.
// Called by the indexer after any write.
func (c *QueryCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexGen++
	c.entries = make(map[string]*cacheEntry)
	c.order = c.order[:0]
}

func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
