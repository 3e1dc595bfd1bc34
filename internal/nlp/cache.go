package nlp

import (
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/banktalk/internal/model"
)

type cacheEntry struct {
	expiry time.Time
	resp   *model.ClassificationResponse
}

// responseCache holds classic classifications per user and utterance. Smart
// classifications depend on conversation state held by the backend and are
// never cached.
type responseCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
}

func newResponseCache(ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		entries: make(map[string]cacheEntry),
		now:     now,
		ttl:     ttl,
	}
}

func cacheKey(userID, text string) string {
	return userID + "\x00" + strings.ToLower(strings.Join(strings.Fields(text), " "))
}

func (c *responseCache) get(key string) (*model.ClassificationResponse, bool) {
	if c.ttl <= 0 {
		return nil, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expiry) {
		return nil, false
	}
	return entry.resp.Clone(), true
}

func (c *responseCache) set(key string, resp *model.ClassificationResponse) {
	if c.ttl <= 0 || resp.IsError() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	// Expired entries are swept on write.
	for k, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = cacheEntry{resp: resp.Clone(), expiry: now.Add(c.ttl)}
}

func (c *responseCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
