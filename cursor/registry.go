package cursor

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Registry is the process-wide cursor table keyed by id. Expiry rides on
// go-cache's own TTL sweep rather than a hand-rolled ticker: a cursor not
// touched within ttl is evicted by the janitor goroutine and closed via
// the OnEvicted hook.
type Registry struct {
	c *gocache.Cache
}

// NewRegistry creates a Registry with the given TTL and sweep interval.
func NewRegistry(ttl, cleanupInterval time.Duration) *Registry {
	c := gocache.New(ttl, cleanupInterval)
	c.OnEvicted(func(_ string, v interface{}) {
		if cur, ok := v.(*Cursor); ok {
			_ = cur.Close()
		}
	})
	return &Registry{c: c}
}

// NewDefaultRegistry creates a Registry with the default ~30s TTL and
// sweep interval.
func NewDefaultRegistry() *Registry {
	return NewRegistry(defaultTTL, defaultCleanupInterval)
}

// Register adds cur to the registry under its id, (re)starting its TTL.
func (r *Registry) Register(cur *Cursor) {
	r.c.SetDefault(cur.ID(), cur)
}

// Get looks up a cursor by id, refreshing its TTL on a hit. The boolean
// result is false both for an unknown id and for an id whose cursor has
// already expired out of the cache.
func (r *Registry) Get(id string) (*Cursor, bool) {
	v, ok := r.c.Get(id)
	if !ok {
		return nil, false
	}
	cur := v.(*Cursor)
	r.c.SetDefault(id, cur)
	return cur, true
}

// Close closes and removes the cursor with the given id. Closing an id
// the registry doesn't know about is a no-op; callers routing cursor
// get/close across backends are expected to retry against the other
// backend's registry before treating an unknown id as an error.
func (r *Registry) Close(id string) error {
	v, ok := r.c.Get(id)
	if !ok {
		return nil
	}
	r.c.Delete(id)
	return v.(*Cursor).Close()
}

// Len reports the number of cursors currently tracked.
func (r *Registry) Len() int {
	return r.c.ItemCount()
}
