package msauth

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// comboCacheTTL and comboCacheSize give the spec's "LRU capped at 500
// entries, TTL 24h" shape directly — the expirable LRU variant combines
// both constraints in one data structure with its own internal locking, so
// no extra mutex is needed around it.
const (
	comboCacheTTL  = 24 * time.Hour
	comboCacheSize = 500
)

// comboCache maps the first 16 characters of a refresh token to the
// (clientId, scope) combination that last succeeded for it, so a
// subsequent refresh for the same account does one HTTP round trip instead
// of scanning the full cross-product.
type comboCache struct {
	lru *lru.LRU[string, combo]
}

func newComboCache() *comboCache {
	return &comboCache{lru: lru.NewLRU[string, combo](comboCacheSize, nil, comboCacheTTL)}
}

func cacheKey(refreshToken string) string {
	if len(refreshToken) <= 16 {
		return refreshToken
	}
	return refreshToken[:16]
}

func (c *comboCache) get(refreshToken string) (combo, bool) {
	return c.lru.Get(cacheKey(refreshToken))
}

func (c *comboCache) put(refreshToken string, cb combo) {
	c.lru.Add(cacheKey(refreshToken), cb)
}
