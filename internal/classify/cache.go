package classify

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// resultCache is a TTL- and size-bounded outcome store. Entries past the TTL
// read as absent; when full, the least recently used entry is evicted first.
// The underlying LRU serializes access, so concurrent chunk workers may read
// and write freely. A disabled cache answers every Get with absent and drops
// every Set, which guarantees fresh classification for benchmarking runs.
type resultCache[V any] struct {
	enabled bool
	lru     *expirable.LRU[string, V]
}

func newResultCache[V any](enabled bool, capacity int, ttl time.Duration) *resultCache[V] {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c := &resultCache[V]{enabled: enabled}
	if enabled {
		c.lru = expirable.NewLRU[string, V](capacity, nil, ttl)
	}
	return c
}

func (c *resultCache[V]) Get(key string) (V, bool) {
	if !c.enabled {
		var zero V
		return zero, false
	}
	return c.lru.Get(key)
}

func (c *resultCache[V]) Set(key string, value V) {
	if !c.enabled {
		return
	}
	c.lru.Add(key, value)
}

// Len reports the live entry count; zero when the cache is disabled.
func (c *resultCache[V]) Len() int {
	if !c.enabled {
		return 0
	}
	return c.lru.Len()
}
