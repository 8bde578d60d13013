package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Fingerprint identifies one version of a source.
type Fingerprint string

// FileFingerprint keys a local workbook by absolute path, modification time and size,
// so an edited file never hits a stale entry.
func FileFingerprint(path string) (Fingerprint, os.FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, err
	}
	return Fingerprint(fmt.Sprintf("file:%s|%d|%d", abs, info.ModTime().UnixNano(), info.Size())), info, nil
}

// URLFingerprint keys a remote workbook by its URL. Freshness comes from the
// entry's TTL since the fetch.
func URLFingerprint(rawURL string) Fingerprint {
	return Fingerprint("url:" + NormalizeShareURL(rawURL))
}

type cacheEntry struct {
	dataset   *Dataset
	cachedAt  time.Time
	expiresAt time.Time
	hits      int
}

// CacheStats reports cache usage.
type CacheStats struct {
	Entries  int     `json:"entries"`
	MaxSize  int     `json:"max_size"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRatio float64 `json:"hit_ratio"`
}

// Cache holds loaded datasets by fingerprint. Entries expire after their TTL
// and are dropped lazily on lookup; Invalidate and Purge drop them explicitly.
type Cache struct {
	mu      sync.RWMutex
	entries map[Fingerprint]*cacheEntry
	maxSize int
	hits    int64
	misses  int64
	now     func() time.Time
}

// NewCache creates a cache holding at most maxSize datasets. maxSize <= 0
// disables caching.
func NewCache(maxSize int) *Cache {
	return &Cache{
		entries: make(map[Fingerprint]*cacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns the dataset cached under key if it has not expired.
func (c *Cache) Get(key Fingerprint) (*Dataset, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if ok && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}

	entry.hits++
	c.hits++
	return entry.dataset, true
}

// Set stores ds under key for ttl, evicting the oldest entry when full.
func (c *Cache) Set(key Fingerprint, ds *Dataset, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize <= 0 {
		return
	}
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := c.now()
	c.entries[key] = &cacheEntry{dataset: ds, cachedAt: now, expiresAt: now.Add(ttl)}
}

// Invalidate removes key.
func (c *Cache) Invalidate(key Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateWhere removes every key matching match and returns how many went.
func (c *Cache) InvalidateWhere(match func(Fingerprint) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Purge removes every entry and returns how many there were.
func (c *Cache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[Fingerprint]*cacheEntry)
	return n
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CacheStats{Entries: len(c.entries), MaxSize: c.maxSize, Hits: c.hits, Misses: c.misses}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRatio = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *Cache) evictOldest() {
	var oldestKey Fingerprint
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldest) {
			oldestKey, oldest = key, entry.cachedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
