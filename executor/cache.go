package executor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	redis_store "github.com/eko/gocache/store/redis/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/squall-chua/mongofacade/router"
)

// DecisionCache remembers a router.Decision for a router.Key, so repeated
// reads with the same filter/pipeline shape skip re-running Analyze. It
// wraps eko/gocache so the backing store (in-process or Redis) is a
// deployment choice, not a code change.
type DecisionCache struct {
	manager cache.CacheInterface[string]
	ttl     time.Duration
}

// NewMemoryDecisionCache builds a DecisionCache backed by an in-process
// go-cache instance, the right choice for a single facade process.
func NewMemoryDecisionCache(ttl time.Duration) *DecisionCache {
	client := gocache.New(ttl, 2*ttl)
	st := gocache_store.NewGoCache(client)
	return &DecisionCache{manager: cache.New[string](st), ttl: ttl}
}

// NewRedisDecisionCache builds a DecisionCache backed by Redis, for sharing
// routing decisions across a fleet of facade processes pointed at the same
// backends.
func NewRedisDecisionCache(addr string, ttl time.Duration) *DecisionCache {
	client := redis.NewClient(&redis.Options{Addr: addr})
	st := redis_store.NewRedis(client)
	return &DecisionCache{manager: cache.New[string](st), ttl: ttl}
}

// NewChainedDecisionCache layers an in-process L1 in front of a shared
// Redis L2, so a fleet of facade processes converges on one decision set
// without paying a network round-trip on every warm read. Redis never
// stores documents in this design, only routing decisions.
func NewChainedDecisionCache(addr string, ttl time.Duration) *DecisionCache {
	l1 := cache.New[string](gocache_store.NewGoCache(gocache.New(ttl, 2*ttl)))
	client := redis.NewClient(&redis.Options{Addr: addr})
	l2 := cache.New[string](redis_store.NewRedis(client, store.WithExpiration(ttl)))
	chained := cache.NewChain[string](l1, l2)
	return &DecisionCache{manager: chained, ttl: ttl}
}

// Get returns the cached Decision for key, if present and unexpired.
func (c *DecisionCache) Get(ctx context.Context, key string) (router.Decision, bool) {
	if c == nil {
		return router.Decision{}, false
	}
	raw, err := c.manager.Get(ctx, key)
	if err != nil {
		return router.Decision{}, false
	}
	var d router.Decision
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return router.Decision{}, false
	}
	return d, true
}

// Set stores d under key with the cache's configured TTL.
func (c *DecisionCache) Set(ctx context.Context, key string, d router.Decision) {
	if c == nil {
		return
	}
	b, err := json.Marshal(d)
	if err != nil {
		return
	}
	_ = c.manager.Set(ctx, key, string(b), store.WithExpiration(c.ttl))
}
