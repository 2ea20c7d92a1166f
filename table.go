// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"iter"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/hint"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/hotcache"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/matcher"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/trie"
)

// shard is one writer section, a persistent trie and its mutex.
type shard struct {
	mu   sync.Mutex
	trie trie.Trie[*Route]
}

// Table is the tiered lookup engine. Create it with [New].
//
// All methods are safe for concurrent use. Lookups never block,
// writers are serialized per shard.
//
// Routes are immutable once published, every write allocates a new one.
type Table struct {
	cfg Config
	log *zap.Logger
	now func() time.Time

	shardBits uint8
	shards    []shard
	cover     shard // prefixes shorter than shardBits

	matcher *matcher.Matcher[*Route]
	hints   *hint.Index
	cache   *hotcache.Cache[*Route] // nil value is a cached no-match
	epochs  *epochs

	seq       atomic.Uint64 // route versions
	mutations atomic.Int64  // since the last hint rebuild

	stats counters
}

// Option configures a Table beyond the serializable Config.
type Option func(*Table)

// WithLogger sets the logger, the default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(t *Table) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock replaces time.Now for latency and uptime measurement.
func WithClock(now func() time.Time) Option {
	return func(t *Table) {
		if now != nil {
			t.now = now
		}
	}
}

// New returns an empty table, cfg must be valid.
func New(cfg Config, opts ...Option) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Table{
		cfg:       cfg,
		log:       zap.NewNop(),
		now:       time.Now,
		shardBits: uint8(cfg.ShardBits),
		shards:    make([]shard, 1<<cfg.ShardBits),
		epochs:    newEpochs(uint8(cfg.ClusterBits)),
	}
	for _, opt := range opts {
		opt(t)
	}

	var err error
	if t.matcher, err = matcher.New[*Route](cfg.HotLengths); err != nil {
		return nil, errors.Wrapf(ErrValidation, "%v", err)
	}
	if t.hints, err = hint.New(cfg.ClusterBits); err != nil {
		return nil, errors.Wrapf(ErrValidation, "%v", err)
	}
	if t.cache, err = hotcache.New[*Route](cfg.CacheCapacity, cfg.CacheShards); err != nil {
		return nil, errors.Wrapf(ErrValidation, "%v", err)
	}

	t.stats.reset(t.now())

	t.log.Info("table created",
		zap.Ints("hot_lengths", t.matcher.HotLens()),
		zap.Int("shards", len(t.shards)),
		zap.Int("clusters", t.hints.NumClusters()),
		zap.Int("cache_capacity", t.cache.Capacity()),
		zap.Int("cache_shards", t.cache.Shards()),
		zap.String("policy", string(cfg.Policy)),
	)
	return t, nil
}

// Config returns the configuration of t.
func (t *Table) Config() Config {
	cfg := t.cfg
	cfg.HotLengths = slices.Clone(cfg.HotLengths)
	return cfg
}

func (t *Table) shardOf(p Prefix) *shard {
	if p.Len < t.shardBits {
		return &t.cover
	}
	return &t.shards[cidr.Top(p.Addr, t.shardBits)]
}

// Lookup returns the route of the longest prefix containing addr.
func (t *Table) Lookup(addr uint32) (Route, bool) {
	var start time.Time
	if t.cfg.TrackLatency {
		start = t.now()
	}

	r := t.lookup(addr)

	t.stats.lookups.Add(1)
	if r == nil {
		t.stats.noMatch.Add(1)
	}
	if t.cfg.TrackLatency {
		t.stats.observe(t.now().Sub(start))
	}

	if r == nil {
		return Route{}, false
	}
	return *r, true
}

// LookupAddr is Lookup for a netip.Addr, IPv6 addresses never match.
func (t *Table) LookupAddr(a netip.Addr) (Route, bool) {
	a = a.Unmap()
	if !a.Is4() {
		return Route{}, false
	}
	return t.Lookup(addrToUint32(a))
}

// LookupString is Lookup for a dotted quad or a decimal 32-bit integer.
// Only malformed input is an error, not a missing route.
func (t *Table) LookupString(s string) (Route, bool, error) {
	addr, err := ParseAddr(s)
	if err != nil {
		return Route{}, false, errors.Wrap(err, "lookup")
	}
	r, ok := t.Lookup(addr)
	return r, ok, nil
}

// lookup runs the tiers, the counters of the deciding tier are updated.
//
// The fast path results are only accepted if no write to the regions of
// addr started or finished in between, the trie alone is authoritative.
func (t *Table) lookup(addr uint32) *Route {
	tok, stable := t.epochs.token(addr)
	useCache := stable && t.cfg.Policy.useCache()

	if useCache {
		if r, ok := t.cache.Get(addr, tok); ok {
			return r
		}
	}

	if stable && t.cfg.Policy.useMatcher() {
		if r, _, res := t.matcher.Lookup(addr); res == matcher.Hit {
			if t.epochs.unchanged(addr, tok) {
				t.stats.matcherHits.Add(1)
				if useCache {
					t.cache.Put(addr, tok, r)
				}
				return r
			}
			t.stats.retries.Add(1)
		}
	}

	t.stats.trieLookups.Add(1)
	if !stable || !t.cfg.Policy.useHints() {
		return t.lookupTrie(addr, false)
	}

	r := t.lookupTrie(addr, true)
	if !t.epochs.unchanged(addr, tok) {
		// the hint may be older than the trie we walked
		t.stats.retries.Add(1)
		return t.lookupTrie(addr, false)
	}

	if useCache {
		t.cache.Put(addr, tok, r)
	}
	return r
}

// lookupTrie is the cold path. With hinted set the hint index bounds the
// walk or skips it altogether, that is only sound if no write raced it.
func (t *Table) lookupTrie(addr uint32, hinted bool) *Route {
	maxBits := uint8(cidr.MaxBits)
	if hinted {
		c := t.hints.Candidates(addr)
		if c.Empty() {
			t.stats.hintSkips.Add(1)
			return nil
		}
		maxBits = c.MaxBits()
	}

	// any shard prefix is longer than all cover prefixes
	if maxBits >= t.shardBits {
		s := &t.shards[cidr.Top(addr, t.shardBits)]
		if r, _, ok := s.trie.LongestMatch(addr, maxBits); ok {
			return r
		}
	}
	if r, _, ok := t.cover.trie.LongestMatch(addr, maxBits); ok {
		return r
	}
	return nil
}

// Insert adds or updates the route for p. The host bits of p are masked.
// An update replaces next hop and metric and bumps the version.
func (t *Table) Insert(p Prefix, nextHop string, metric uint32) error {
	rs, err := RouteSpec{Prefix: p, NextHop: nextHop, Metric: metric}.canonical()
	if err != nil {
		return errors.Wrap(err, "insert")
	}
	t.insert(rs)
	t.afterWrite(1)
	return nil
}

// InsertString is Insert with a prefix in CIDR notation.
func (t *Table) InsertString(s, nextHop string, metric uint32) error {
	p, err := ParsePrefix(s)
	if err != nil {
		return errors.Wrap(err, "insert")
	}
	return t.Insert(p, nextHop, metric)
}

// insert expects a canonical route spec.
func (t *Table) insert(rs RouteSpec) {
	p := rs.Prefix
	s := t.shardOf(p)
	reg := t.epochs.regionOf(p)

	s.mu.Lock()
	t.epochs.beginWrite(reg)

	// the hint must admit p before any reader can find it
	t.hints.Widen(p.Addr, p.Len)

	r := &Route{Prefix: p, NextHop: rs.NextHop, Metric: rs.Metric, Version: t.seq.Add(1)}
	old, exists := s.trie.Insert(p.Addr, p.Len, r)
	t.matcher.Insert(p.Addr, p.Len, r, !exists)

	t.epochs.endWrite(reg)
	s.mu.Unlock()

	if exists {
		t.stats.updates.Add(1)
		t.log.Debug("route updated",
			zap.Stringer("prefix", p),
			zap.String("next_hop", r.NextHop),
			zap.Uint32("metric", r.Metric),
			zap.Uint64("version", r.Version),
			zap.Uint64("old_version", old.Version),
		)
		return
	}

	t.stats.inserts.Add(1)
	t.log.Debug("route inserted",
		zap.Stringer("prefix", p),
		zap.String("next_hop", r.NextHop),
		zap.Uint32("metric", r.Metric),
		zap.Uint64("version", r.Version),
	)
}

// Delete removes the route for p, ErrNotFound if there is none.
func (t *Table) Delete(p Prefix) error {
	p, err := p.canonical()
	if err != nil {
		return errors.Wrap(err, "delete")
	}

	s := t.shardOf(p)
	reg := t.epochs.regionOf(p)

	s.mu.Lock()
	if _, ok := s.trie.Get(p.Addr, p.Len); !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrNotFound, "delete %s", p)
	}

	t.epochs.beginWrite(reg)
	old, _ := s.trie.Delete(p.Addr, p.Len)
	t.matcher.Delete(p.Addr, p.Len)
	t.epochs.endWrite(reg)
	s.mu.Unlock()

	t.stats.deletes.Add(1)
	t.log.Debug("route deleted",
		zap.Stringer("prefix", p),
		zap.Uint64("version", old.Version),
	)

	t.afterWrite(1)
	return nil
}

// DeleteString is Delete with a prefix in CIDR notation.
func (t *Table) DeleteString(s string) error {
	p, err := ParsePrefix(s)
	if err != nil {
		return errors.Wrap(err, "delete")
	}
	return t.Delete(p)
}

// Get returns the route stored for exactly p.
func (t *Table) Get(p Prefix) (Route, bool) {
	p, err := p.canonical()
	if err != nil {
		return Route{}, false
	}
	r, ok := t.shardOf(p).trie.Get(p.Addr, p.Len)
	if !ok {
		return Route{}, false
	}
	return *r, true
}

// Len returns the number of routes.
func (t *Table) Len() int {
	n := t.cover.trie.Len()
	for i := range t.shards {
		n += t.shards[i].trie.Len()
	}
	return n
}

// All returns an iterator over all routes, the prefixes shorter than
// ShardBits first, then shard by shard in address order.
// Under concurrent writes the shards are read one after the other.
func (t *Table) All() iter.Seq[Route] {
	return func(yield func(Route) bool) {
		for _, r := range t.all() {
			if !yield(*r) {
				return
			}
		}
	}
}

// Routes returns all routes sorted by address, then prefix length.
func (t *Table) Routes() []Route {
	routes := slices.Collect(t.All())
	slices.SortFunc(routes, func(a, b Route) int {
		return cidr.Compare(a.Prefix.Addr, a.Prefix.Len, b.Prefix.Addr, b.Prefix.Len)
	})
	return routes
}

func (t *Table) all() iter.Seq2[trie.Key, *Route] {
	return func(yield func(trie.Key, *Route) bool) {
		for k, r := range t.cover.trie.All() {
			if !yield(k, r) {
				return
			}
		}
		for i := range t.shards {
			for k, r := range t.shards[i].trie.All() {
				if !yield(k, r) {
					return
				}
			}
		}
	}
}

// afterWrite triggers a hint rebuild once enough mutations piled up.
func (t *Table) afterWrite(n int) {
	thr := int64(t.cfg.RebuildThreshold)
	if thr > 0 && t.mutations.Add(int64(n)) >= thr {
		t.rebuildHints(false)
	}
}

// RebuildHints rebuilds the hint index from the current routes.
// All writers are blocked for the duration.
func (t *Table) RebuildHints() {
	t.rebuildHints(true)
}

func (t *Table) rebuildHints(force bool) {
	t.lockAll()
	defer t.unlockAll()

	pending := t.mutations.Load()
	if !force && pending < int64(t.cfg.RebuildThreshold) {
		// somebody else was faster
		return
	}

	start := t.now()
	t.hints.Rebuild(func(yield func(uint32, uint8) bool) {
		for k := range t.all() {
			if !yield(k.Addr, k.Bits) {
				return
			}
		}
	})
	t.mutations.Store(0)
	t.stats.rebuilds.Add(1)

	st := t.hints.Stats()
	t.log.Info("hint index rebuilt",
		zap.Int("prefixes", st.Prefixes),
		zap.Int("populated", st.Populated),
		zap.Int("covered", st.Covered),
		zap.Int64("mutations", pending),
		zap.Duration("took", t.now().Sub(start)),
	)
}

// lockAll acquires all writer sections in a fixed order.
func (t *Table) lockAll() {
	for i := range t.shards {
		t.shards[i].mu.Lock()
	}
	t.cover.mu.Lock()
}

func (t *Table) unlockAll() {
	t.cover.mu.Unlock()
	for i := len(t.shards) - 1; i >= 0; i-- {
		t.shards[i].mu.Unlock()
	}
}

// Stats returns a snapshot of the counters.
func (t *Table) Stats() Stats {
	cc := t.cache.Counters()

	s := Stats{
		Lookups:        t.stats.lookups.Load(),
		CacheHits:      cc.Hits,
		MatcherHits:    t.stats.matcherHits.Load(),
		TrieLookups:    t.stats.trieLookups.Load(),
		HintSkips:      t.stats.hintSkips.Load(),
		NoMatch:        t.stats.noMatch.Load(),
		CacheMisses:    cc.Misses,
		CacheStale:     cc.Stale,
		CacheEvictions: cc.Evictions,
		CacheEntries:   t.cache.Len(),
		Retries:        t.stats.retries.Load(),
		Inserts:        t.stats.inserts.Load(),
		Updates:        t.stats.updates.Load(),
		Deletes:        t.stats.deletes.Load(),
		HintRebuilds:   t.stats.rebuilds.Load(),
		LatencySum:     time.Duration(t.stats.latencySum.Load()),
		MaxLatency:     time.Duration(t.stats.latencyMax.Load()),
		Routes:         t.Len(),
		Uptime:         t.now().Sub(time.Unix(0, t.stats.since.Load())),
	}
	if lmin := t.stats.latencyMin.Load(); lmin != ^uint64(0) {
		s.MinLatency = time.Duration(lmin)
	}
	return s
}

// ResetStats zeroes all counters and restarts the uptime.
// Routes and cached entries are kept.
func (t *Table) ResetStats() {
	t.stats.reset(t.now())
	t.cache.ResetCounters()
}
