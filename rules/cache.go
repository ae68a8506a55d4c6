package rules

import (
	"sync"
	"time"
)

// RulesCache caches dispatch candidate lists keyed by family and trigger
// kind. Implementations may be in-memory or backed by an external cache.
type RulesCache interface {
	// Get retrieves cached rules for a family/kind pair. ok is false on a
	// miss or an expired entry.
	Get(familyID string, kind TriggerKind) (rules []*Rule, ok bool)

	// Set stores a candidate list.
	Set(familyID string, kind TriggerKind, rules []*Rule)

	// Invalidate drops every cached entry for a family. Called on rule
	// mutations so dispatch never runs stale definitions past the TTL.
	Invalidate(familyID string)
}

// CacheConfig holds cache behavior settings.
type CacheConfig struct {
	// TTL is the time-to-live for cached entries. 0 means entries live
	// until invalidated.
	TTL time.Duration
}

// DefaultCacheConfig returns the stock cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 30 * time.Second}
}

type cacheKey struct {
	familyID string
	kind     TriggerKind
}

type cacheEntry struct {
	rules    []*Rule
	cachedAt time.Time
}

// InMemoryRulesCache is a thread-safe in-memory RulesCache.
type InMemoryRulesCache struct {
	config  CacheConfig
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewInMemoryRulesCache creates an empty in-memory cache.
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{
		config:  config,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Get retrieves cached rules for a family/kind pair.
func (c *InMemoryRulesCache) Get(familyID string, kind TriggerKind) ([]*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey{familyID, kind}]
	if !ok {
		return nil, false
	}
	if c.config.TTL > 0 && time.Since(entry.cachedAt) > c.config.TTL {
		return nil, false
	}

	// Return a copy so callers cannot mutate the cached slice.
	rules := make([]*Rule, len(entry.rules))
	copy(rules, entry.rules)
	return rules, true
}

// Set stores a candidate list.
func (c *InMemoryRulesCache) Set(familyID string, kind TriggerKind, rules []*Rule) {
	stored := make([]*Rule, len(rules))
	copy(stored, rules)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{familyID, kind}] = cacheEntry{rules: stored, cachedAt: time.Now()}
}

// Invalidate drops every entry for a family.
func (c *InMemoryRulesCache) Invalidate(familyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if key.familyID == familyID {
			delete(c.entries, key)
		}
	}
}
