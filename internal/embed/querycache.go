package embed

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryCache memoizes EmbedQuery results for identical query text against
// the same provider deployment, avoiding a round trip (or a local model
// call) on repeated searches within a session. It wraps any Provider and
// is itself a Provider, so it composes transparently with the factory
// result.
type QueryCache struct {
	Provider
	providerKey string

	mu    sync.Mutex
	cache *lru.Cache[string, []float32]
}

// NewQueryCache wraps provider with an LRU cache of the given capacity.
// providerKey should come from ProviderKey so cache entries never leak
// across differently-configured deployments of the same provider id.
func NewQueryCache(provider Provider, providerKey string, capacity int) *QueryCache {
	if capacity <= 0 {
		capacity = 256
	}
	cache, _ := lru.New[string, []float32](capacity)
	return &QueryCache{Provider: provider, providerKey: providerKey, cache: cache}
}

func (c *QueryCache) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := c.providerKey + "\x00" + text

	c.mu.Lock()
	if v, ok := c.cache.Get(key); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache.Add(key, v)
	c.mu.Unlock()
	return v, nil
}
