// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/cpu"
)

// counter is padded to its own cache line, lookups on all cores hit them.
type counter struct {
	atomic.Uint64
	_ cpu.CacheLinePad
}

type counters struct {
	lookups     counter
	matcherHits counter
	trieLookups counter
	hintSkips   counter
	noMatch     counter
	retries     counter

	inserts  counter
	updates  counter
	deletes  counter
	rebuilds counter

	latencySum counter
	latencyMin counter
	latencyMax counter

	// unix nanos of creation or the last reset
	since atomic.Int64
}

func (c *counters) reset(now time.Time) {
	for _, x := range []*counter{
		&c.lookups, &c.matcherHits, &c.trieLookups, &c.hintSkips, &c.noMatch, &c.retries,
		&c.inserts, &c.updates, &c.deletes, &c.rebuilds,
		&c.latencySum, &c.latencyMax,
	} {
		x.Store(0)
	}
	c.latencyMin.Store(math.MaxUint64)
	c.since.Store(now.UnixNano())
}

// observe records the latency of one lookup.
func (c *counters) observe(d time.Duration) {
	ns := uint64(max(d, 0))
	c.latencySum.Add(ns)

	for {
		cur := c.latencyMin.Load()
		if ns >= cur || c.latencyMin.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := c.latencyMax.Load()
		if ns <= cur || c.latencyMax.CompareAndSwap(cur, ns) {
			break
		}
	}
}

// observeBatch records a batch of n lookups, min and max
// get the average latency per address.
func (c *counters) observeBatch(d time.Duration, n int) {
	if n <= 0 {
		return
	}
	avg := d / time.Duration(n)
	c.observe(avg)
	c.latencySum.Add(uint64(max(d-avg, 0)))
}

// Stats is a point in time snapshot of the table counters.
// The counters are read one by one without a lock, a snapshot taken
// under load is not exactly consistent.
type Stats struct {
	// Lookups counts single and batch lookups per address.
	Lookups uint64

	// every lookup is answered by exactly one tier
	CacheHits   uint64
	MatcherHits uint64
	TrieLookups uint64

	// HintSkips counts trie lookups answered by the hint index alone.
	HintSkips uint64

	// NoMatch counts lookups without a matching route, all tiers.
	NoMatch uint64

	CacheMisses    uint64
	CacheStale     uint64
	CacheEvictions uint64
	CacheEntries   int

	// Retries counts fast path results dropped due to a concurrent write.
	Retries uint64

	Inserts      uint64
	Updates      uint64
	Deletes      uint64
	HintRebuilds uint64

	// latencies are only tracked with Config.TrackLatency
	LatencySum time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration

	Routes int
	Uptime time.Duration
}

// CacheHitRate is the share of lookups answered by the cache, 0..1.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// AvgLatency per lookup, 0 without tracked lookups.
func (s Stats) AvgLatency() time.Duration {
	if s.Lookups == 0 || s.LatencySum == 0 {
		return 0
	}
	return s.LatencySum / time.Duration(s.Lookups)
}

// LookupsPerSecond over the uptime.
func (s Stats) LookupsPerSecond() float64 {
	if s.Uptime <= 0 {
		return 0
	}
	return float64(s.Lookups) / s.Uptime.Seconds()
}

// String returns a human readable multi line summary.
func (s Stats) String() string {
	return fmt.Sprintf(`routes:      %s
lookups:     %s (%s/s)
cache:       %s hits, %s misses, %s stale, %.1f%% hit rate
matcher:     %s hits
trie:        %s lookups, %s hint skips
no match:    %s
latency:     avg %v, min %v, max %v
writes:      %s inserts, %s updates, %s deletes, %s hint rebuilds
uptime:      %v`,
		humanize.Comma(int64(s.Routes)),
		humanize.Comma(int64(s.Lookups)), humanize.SIWithDigits(s.LookupsPerSecond(), 2, ""),
		humanize.Comma(int64(s.CacheHits)), humanize.Comma(int64(s.CacheMisses)), humanize.Comma(int64(s.CacheStale)), 100*s.CacheHitRate(),
		humanize.Comma(int64(s.MatcherHits)),
		humanize.Comma(int64(s.TrieLookups)), humanize.Comma(int64(s.HintSkips)),
		humanize.Comma(int64(s.NoMatch)),
		s.AvgLatency(), s.MinLatency, s.MaxLatency,
		humanize.Comma(int64(s.Inserts)), humanize.Comma(int64(s.Updates)), humanize.Comma(int64(s.Deletes)), humanize.Comma(int64(s.HintRebuilds)),
		s.Uptime.Round(time.Millisecond),
	)
}
