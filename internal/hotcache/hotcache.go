// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package hotcache is a sharded, bounded LRU cache for lookup results.
//
// Every entry carries the version of the table region it was computed
// from. A Get with a different version treats the entry as stale, drops it
// and reports a miss, so a writer never has to find and purge the results
// it invalidated.
//
// Each shard is a golang-lru cache with its own lock, keys are spread
// over the shards by fibonacci hashing.
package hotcache

import (
	"fmt"
	"math/bits"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is the cached value with the version it is valid for.
type entry[V any] struct {
	version uint64
	val     V
}

type shard[V any] struct {
	lru *lru.Cache[uint32, entry[V]]
	cap int
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	shards []shard[V]
	shift  uint8

	hits      atomic.Uint64
	misses    atomic.Uint64
	stale     atomic.Uint64
	evictions atomic.Uint64
}

// New returns a cache for at most capacity entries, split over numShards
// shards. numShards is rounded up to a power of two and reduced until every
// shard holds at least one entry.
func New[V any](capacity, numShards int) (*Cache[V], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("cache capacity %d, must be positive", capacity)
	}
	if numShards < 1 {
		return nil, fmt.Errorf("cache shards %d, must be positive", numShards)
	}

	n := 1 << bits.Len(uint(numShards-1))
	for n > 1 && capacity/n < 1 {
		n >>= 1
	}

	c := &Cache[V]{
		shards: make([]shard[V], n),
		shift:  uint8(32 - bits.TrailingZeros(uint(n))),
	}

	per, rest := capacity/n, capacity%n
	for i := range c.shards {
		size := per
		if i < rest {
			size++
		}

		l, err := lru.New[uint32, entry[V]](size)
		if err != nil {
			return nil, fmt.Errorf("cache shard %d: %w", i, err)
		}
		c.shards[i] = shard[V]{lru: l, cap: size}
	}
	return c, nil
}

// shardOf spreads neighboring addresses over the shards, fibonacci hashing.
func (c *Cache[V]) shardOf(key uint32) *shard[V] {
	if len(c.shards) == 1 {
		return &c.shards[0]
	}
	h := key * 0x9e3779b1
	return &c.shards[h>>c.shift]
}

// Get returns the value cached for key, if it was stored with version.
// An entry of another version is removed.
func (c *Cache[V]) Get(key uint32, version uint64) (val V, ok bool) {
	s := c.shardOf(key)

	e, found := s.lru.Get(key)
	switch {
	case !found:
		c.misses.Add(1)
		return val, false
	case e.version != version:
		// a concurrent Put of a fresh entry may be dropped as well,
		// that costs one more miss
		s.lru.Remove(key)
		c.stale.Add(1)
		c.misses.Add(1)
		return val, false
	}

	c.hits.Add(1)
	return e.val, true
}

// Put stores val for key at version, evicting the least recently used
// entry of the shard if it is full.
func (c *Cache[V]) Put(key uint32, version uint64, val V) {
	if c.shardOf(key).lru.Add(key, entry[V]{version: version, val: val}) {
		c.evictions.Add(1)
	}
}

// Purge drops all entries, the counters are kept.
func (c *Cache[V]) Purge() {
	for i := range c.shards {
		c.shards[i].lru.Purge()
	}
}

// Len returns the number of cached entries, stale ones included.
func (c *Cache[V]) Len() (n int) {
	for i := range c.shards {
		n += c.shards[i].lru.Len()
	}
	return n
}

// Capacity returns the maximum number of entries.
func (c *Cache[V]) Capacity() (n int) {
	for i := range c.shards {
		n += c.shards[i].cap
	}
	return n
}

// Shards returns the number of shards.
func (c *Cache[V]) Shards() int {
	return len(c.shards)
}

// Counters of the cache since creation or the last ResetCounters.
type Counters struct {
	Hits      uint64
	Misses    uint64
	Stale     uint64
	Evictions uint64
}

// Counters returns the current counters.
func (c *Cache[V]) Counters() Counters {
	return Counters{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stale:     c.stale.Load(),
		Evictions: c.evictions.Load(),
	}
}

// ResetCounters zeroes all counters.
func (c *Cache[V]) ResetCounters() {
	c.hits.Store(0)
	c.misses.Store(0)
	c.stale.Store(0)
	c.evictions.Store(0)
}
