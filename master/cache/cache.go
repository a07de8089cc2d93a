// Package cache is the master's in-process read cache. It remembers the
// outcome of directory and machine-API lookups, including negative outcomes,
// for a bounded time so hot paths (authorization, manifest assembly) do not
// hammer the backends. The directory remains the authority: writes
// invalidate locally, and cross-process coherence is TTL only.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
)

// Scope separates the key spaces sharing one physical cache.
type Scope string

const (
	AccountByLogin   Scope = "AccountByLogin"
	OperatorStatus   Scope = "OperatorStatus"
	MachineOwnership Scope = "MachineOwnership"
	ServerExists     Scope = "ServerExists"

	ContactGet  Scope = "ContactGet"
	ContactList Scope = "ContactList"
	MonitorGet  Scope = "MonitorGet"
	MonitorList Scope = "MonitorList"
	ProbeGet    Scope = "ProbeGet"
	ProbeList   Scope = "ProbeList"
)

type entry struct {
	value interface{}
	err   error
}

// Cache is a TTL+LRU cache of lookup outcomes keyed by (scope, key).
// Expired entries read as misses; the least recently used entry is evicted
// at the size bound.
type Cache struct {
	lru *expirable.LRU[string, entry]
}

// New builds a cache holding up to size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{lru: expirable.NewLRU[string, entry](size, nil, ttl)}
}

func cacheKey(scope Scope, key string) string {
	return string(scope) + "|" + key
}

// Through returns the outcome of fetch for (scope, key), serving repeats
// from the cache until the entry expires or is invalidated. Error outcomes
// are cached too, with one exception: Unavailable is never stored, so a
// transient backend outage clears as soon as the backend recovers.
func (c *Cache) Through(scope Scope, key string, fetch func() (interface{}, error)) (interface{}, error) {
	ck := cacheKey(scope, key)
	if e, ok := c.lru.Get(ck); ok {
		return e.value, e.err
	}
	value, err := fetch()
	if amonerr.IsUnavailable(err) {
		return value, err
	}
	c.lru.Add(ck, entry{value: value, err: err})
	return value, err
}

// Invalidate drops the entry for (scope, key), if present.
func (c *Cache) Invalidate(scope Scope, key string) {
	c.lru.Remove(cacheKey(scope, key))
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
