package service

import (
	"sync"
	"time"

	tokendomain "github.com/smallbiznis/payrail/internal/token/domain"
)

// tokenCache is a per-service TTL cache of token collections. It exists so
// gateways whose tokens live only server-side are not re-fetched on every
// render within a request burst; invalidation is explicit on any mutation.
type tokenCache struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]tokenCacheEntry
}

type tokenCacheEntry struct {
	expiresAt time.Time
	tokens    []tokendomain.PaymentToken
}

func newTokenCache(ttl time.Duration) *tokenCache {
	return &tokenCache{
		ttl:   ttl,
		items: make(map[string]tokenCacheEntry),
	}
}

func (c *tokenCache) Get(key string) ([]tokendomain.PaymentToken, bool) {
	if c == nil || key == "" {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().UTC().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	tokens := append([]tokendomain.PaymentToken(nil), entry.tokens...)
	return tokens, true
}

func (c *tokenCache) Set(key string, tokens []tokendomain.PaymentToken) {
	if c == nil || key == "" {
		return
	}
	cloned := append([]tokendomain.PaymentToken(nil), tokens...)
	c.mu.Lock()
	c.items[key] = tokenCacheEntry{
		expiresAt: time.Now().UTC().Add(c.ttl),
		tokens:    cloned,
	}
	c.mu.Unlock()
}

func (c *tokenCache) Invalidate(key string) {
	if c == nil || key == "" {
		return
	}
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}
