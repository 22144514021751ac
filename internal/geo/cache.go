package geo

import (
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
)

// Cache memoizes address-based district lookups for one run. Resolution is
// deterministic, so insert-if-absent with last-writer-wins on a racing key is
// safe: colliding writes carry the same value.
type Cache struct {
	mu sync.RWMutex
	m  map[string]cacheEntry
}

type cacheEntry struct {
	district string
	resolved bool
}

// NewCache creates an empty cache. The cache is owned by the run that creates
// it, not shared across runs.
func NewCache() *Cache {
	return &Cache{m: make(map[string]cacheEntry)}
}

// Lookup returns the cached resolution for a normalized address key.
// The second return distinguishes "cached as unresolved" from "not cached".
func (c *Cache) Lookup(key string) (district string, resolved bool, cached bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	return e.district, e.resolved, ok
}

// Store records a resolution (including negative results, so unresolvable
// addresses are not re-scanned).
func (c *Cache) Store(key, district string, resolved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cacheEntry{district: district, resolved: resolved}
}

// Len returns the number of cached addresses.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// NormalizeAddress produces the cache key for an address: NFC-normalized,
// lower-cased, whitespace-collapsed.
func NormalizeAddress(address string) string {
	s := norm.NFC.String(address)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
