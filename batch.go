// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/matcher"
)

// Result of one address of a batch lookup.
type Result struct {
	Addr  uint32
	Route Route
	OK    bool

	// Err is only set for malformed input, see LookupBatchStrings.
	Err error
}

// batchState is the per address progress of a batch lookup.
type batchState struct {
	tok    uint64
	stable bool
	r      *Route
	done   bool
}

// LookupBatch resolves all addresses, in input order. Every element is
// exactly what Lookup returns for its address, the matcher probes are
// shared across the batch one prefix length at a time.
func (t *Table) LookupBatch(addrs []uint32) []Result {
	results := make([]Result, len(addrs))
	if len(addrs) == 0 {
		return results
	}

	var start time.Time
	if t.cfg.TrackLatency {
		start = t.now()
	}

	t.lookupBatch(addrs, results)

	if t.cfg.TrackLatency {
		t.stats.observeBatch(t.now().Sub(start), len(addrs))
	}
	return results
}

// LookupBatchStrings parses and resolves all addresses, in input order.
// Malformed entries get an Err and never stop the others.
func (t *Table) LookupBatchStrings(addrs []string) []Result {
	results := make([]Result, len(addrs))

	parsed := make([]uint32, 0, len(addrs))
	index := make([]int, 0, len(addrs))
	for i, s := range addrs {
		addr, err := ParseAddr(s)
		if err != nil {
			results[i].Err = errors.Wrapf(err, "batch lookup [%d]", i)
			continue
		}
		parsed = append(parsed, addr)
		index = append(index, i)
	}

	for k, res := range t.LookupBatch(parsed) {
		results[index[k]] = res
	}
	return results
}

func (t *Table) lookupBatch(addrs []uint32, results []Result) {
	states := make([]batchState, len(addrs))
	useCache := t.cfg.Policy.useCache()
	useHints := t.cfg.Policy.useHints()

	// tier 1, the cache
	for i, addr := range addrs {
		st := &states[i]
		st.tok, st.stable = t.epochs.token(addr)
		if st.stable && useCache {
			st.r, st.done = t.cache.Get(addr, st.tok)
		}
	}

	// tier 2, all pending addresses through the matcher at once
	if t.cfg.Policy.useMatcher() {
		var probes []matcher.Probe[*Route]
		var index []int
		for i := range states {
			if !states[i].done && states[i].stable {
				probes = append(probes, matcher.Probe[*Route]{Addr: addrs[i]})
				index = append(index, i)
			}
		}

		t.matcher.LookupBatch(probes)

		for k, p := range probes {
			if p.Res != matcher.Hit {
				continue
			}
			st := &states[index[k]]
			if !t.epochs.unchanged(p.Addr, st.tok) {
				t.stats.retries.Add(1)
				continue
			}
			t.stats.matcherHits.Add(1)
			st.r, st.done = p.Val, true
			if useCache {
				t.cache.Put(p.Addr, st.tok, p.Val)
			}
		}
	}

	// tier 3, the rest from the tries
	for i, addr := range addrs {
		st := &states[i]
		if st.done {
			continue
		}

		t.stats.trieLookups.Add(1)
		if !st.stable || !useHints {
			st.r = t.lookupTrie(addr, false)
			continue
		}

		st.r = t.lookupTrie(addr, true)
		if !t.epochs.unchanged(addr, st.tok) {
			t.stats.retries.Add(1)
			st.r = t.lookupTrie(addr, false)
			continue
		}
		if useCache {
			t.cache.Put(addr, st.tok, st.r)
		}
	}

	t.stats.lookups.Add(uint64(len(addrs)))
	for i, addr := range addrs {
		results[i].Addr = addr
		if r := states[i].r; r != nil {
			results[i].Route, results[i].OK = *r, true
			continue
		}
		t.stats.noMatch.Add(1)
	}
}

// InsertBatch validates all routes first and inserts nothing if any is
// invalid, all problems are reported. The hint index is rebuilt and the
// lookup cache is purged afterwards.
func (t *Table) InsertBatch(routes []RouteSpec) error {
	canon := make([]RouteSpec, len(routes))

	var errs error
	for i, rs := range routes {
		var err error
		if canon[i], err = rs.canonical(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "route [%d]", i))
		}
	}
	if errs != nil {
		return errors.Wrap(errs, "insert batch")
	}

	start := t.now()
	for _, rs := range canon {
		t.insert(rs)
	}
	t.mutations.Add(int64(len(canon)))
	t.RebuildHints()

	// after a bulk load most cached results are stale anyway
	t.cache.Purge()

	t.log.Info("batch inserted",
		zap.Int("routes", len(canon)),
		zap.Int("table_size", t.Len()),
		zap.Duration("took", t.now().Sub(start)),
	)
	return nil
}
