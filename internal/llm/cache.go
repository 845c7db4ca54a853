package llm

import (
	"sync"
	"time"
)

type cacheEntry struct {
	expiry     time.Time
	suggestion Suggestion
}

// suggestionCache holds suggestions keyed by transaction fingerprint.
type suggestionCache struct {
	now     func() time.Time
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
	once    sync.Once
}

func newSuggestionCache(ttl time.Duration) *suggestionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &suggestionCache{
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go cache.cleanup(5 * time.Minute)
	return cache
}

func (c *suggestionCache) get(key string) (Suggestion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiry) {
		return Suggestion{}, false
	}
	return entry.suggestion.clone(), true
}

func (c *suggestionCache) set(key string, suggestion Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		suggestion: suggestion.clone(),
		expiry:     c.now().Add(c.ttl),
	}
}

func (c *suggestionCache) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *suggestionCache) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}

func (c *suggestionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// close stops the cleanup goroutine. Safe to call more than once.
func (c *suggestionCache) close() {
	c.once.Do(func() { close(c.stopCh) })
}
