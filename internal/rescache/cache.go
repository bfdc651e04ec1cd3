// Package rescache implements the per-filter result cache: a
// fingerprint(u64) -> certitude(u32) LRU bounded by entry count,
// guarded by one mutex so lookup+store form a single critical section
// as spec.md §4.2/§5 require, even though the underlying LRU
// (github.com/hashicorp/golang-lru/v2) is independently thread-safe on
// its own. Grounded on pkg/common/workerpool's mutex-guarded-state
// idiom for the locking shape, and on other_examples manifests that
// depend on hashicorp/golang-lru for the library choice.
package rescache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the shared, mutex-guarded result cache. A zero-capacity
// Cache is valid and simply never stores or hits (Enabled() == false).
type Cache struct {
	mu      sync.Mutex
	lru     *lru.Cache[uint64, uint32]
	enabled bool
}

// New builds a Cache with the given entry capacity. Capacity 0
// disables caching entirely, matching spec.md's "optional (disabled
// when capacity = 0)".
func New(capacity int) *Cache {
	if capacity <= 0 {
		return &Cache{enabled: false}
	}
	l, err := lru.New[uint64, uint32](capacity)
	if err != nil {
		// Only invalid (<=0) sizes error, already excluded above.
		return &Cache{enabled: false}
	}
	return &Cache{lru: l, enabled: true}
}

// Enabled reports whether this cache is active. A task computes this
// once and skips both Lookup and Store for the rest of its run when false.
func (c *Cache) Enabled() bool { return c.enabled }

// Lookup returns the cached certitude for fp, promoting it to
// most-recently-used on hit. Safe to call even when disabled (always misses).
func (c *Cache) Lookup(fp uint64) (uint32, bool) {
	if !c.enabled {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(fp)
}

// Store records fp -> certitude, evicting the LRU entry if at capacity.
func (c *Cache) Store(fp uint64, certitude uint32) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(fp, certitude)
}

// Len reports the current number of cached entries.
func (c *Cache) Len() int {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Fingerprint hashes the given input parts into a single 64-bit
// fingerprint using xxhash-64, the non-cryptographic hash spec.md
// mandates. Classifiers combine whatever input material defines their
// identity (e.g. a hostname, a user-agent string) before hashing.
func Fingerprint(parts ...[]byte) uint64 {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum64()
}
