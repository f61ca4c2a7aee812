// Package cache provides a bounded TTL cache for file contents read by the
// analytics service. Entries are keyed by path, modification time and size,
// so a rewritten file is never served stale.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry represents a cached item with metadata
type Entry struct {
	Lines     []string  `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	HitCount  int       `json:"hit_count"`
}

// IsExpired checks if the cache entry has expired
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Config holds cache configuration
type Config struct {
	// MaxEntries is the maximum number of cached files
	MaxEntries int

	// TTL is the time-to-live for cache entries
	TTL time.Duration

	// Enabled controls whether caching is active
	Enabled bool
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxEntries: 64,
		TTL:        30 * time.Second,
		Enabled:    true,
	}
}

// LineCache holds the trimmed lines of recently read log files.
type LineCache struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	config  Config
	now     func() time.Time

	hits   int
	misses int
}

// New creates a line cache. A non-positive TTL disables caching.
func New(config Config) *LineCache {
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultConfig().MaxEntries
	}
	if config.TTL <= 0 {
		config.Enabled = false
	}
	return &LineCache{
		entries: make(map[string]*Entry),
		config:  config,
		now:     time.Now,
	}
}

// FileKey builds the cache key for a file version.
func FileKey(path string, modTime time.Time, size int64) string {
	return fmt.Sprintf("%s|%d|%d", path, modTime.UnixNano(), size)
}

// Get retrieves the lines stored under key.
func (c *LineCache) Get(key string) ([]string, bool) {
	if !c.config.Enabled {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.misses++
		return nil, false
	}
	if entry.IsExpired(c.now()) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	entry.HitCount++
	c.hits++
	return entry.Lines, true
}

// Set stores lines under key. Older versions of the same path are dropped.
func (c *LineCache) Set(key string, lines []string) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if path, _, ok := strings.Cut(key, "|"); ok {
		c.deleteByPrefixLocked(path + "|")
	}

	// Evict expired entries if at capacity
	if len(c.entries) >= c.config.MaxEntries {
		c.evictExpiredLocked()
	}

	// If still at capacity, evict the oldest entry
	if len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}

	now := c.now()
	c.entries[key] = &Entry{
		Lines:     lines,
		ExpiresAt: now.Add(c.config.TTL),
		CreatedAt: now,
	}
}

// Invalidate removes every cached version of path.
func (c *LineCache) Invalidate(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteByPrefixLocked(path + "|")
}

// Clear removes all entries from the cache
func (c *LineCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
}

// Size returns the number of entries in the cache
func (c *LineCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cache statistics
func (c *LineCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	expiredCount := 0
	now := c.now()
	for _, entry := range c.entries {
		if entry.IsExpired(now) {
			expiredCount++
		}
	}

	return map[string]interface{}{
		"enabled":       c.config.Enabled,
		"size":          len(c.entries),
		"max_size":      c.config.MaxEntries,
		"hits":          c.hits,
		"misses":        c.misses,
		"expired_count": expiredCount,
	}
}

func (c *LineCache) deleteByPrefixLocked(prefix string) int {
	count := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			count++
		}
	}
	return count
}

// evictExpiredLocked removes all expired entries (must hold write lock)
func (c *LineCache) evictExpiredLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
		}
	}
}

// evictOldestLocked removes the oldest entry (must hold write lock)
func (c *LineCache) evictOldestLocked() {
	var oldestKey string
	var oldestTime time.Time
	first := true

	for key, entry := range c.entries {
		if first || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
			first = false
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
