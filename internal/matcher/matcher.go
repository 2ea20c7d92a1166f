// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package matcher implements the hashed fast path of the lookup engine.
//
// Only a small set of hot prefix lengths (typically /32, /24, /16, /8)
// is indexed. A lookup masks the address once per hot length and probes
// one bucket per length, bounded work independent of the table size.
//
// The matcher never returns a wrong match. Every entry counts the
// prefixes of non-hot lengths that are more specific than itself; an
// entry with such shadowing prefixes can't decide the lookup and the
// caller has to fall back to the authoritative trie.
package matcher

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// Result of a matcher probe.
type Result uint8

const (
	// Miss, no hot length prefix covers the address.
	Miss Result = iota
	// Hit, the returned value is the longest prefix match.
	Hit
	// Ambiguous, a hot prefix covers the address but may be
	// shadowed by a more specific prefix of a non-hot length.
	Ambiguous
)

func (r Result) String() string {
	switch r {
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case Ambiguous:
		return "ambiguous"
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

// bucketsPerLen, buckets are selected by the top byte of the masked key.
const bucketsPerLen = 256

type entry[V any] struct {
	val V
	ok  bool

	// number of non-hot prefixes inside this range and longer than it
	shadowed uint32
}

type bucket[V any] map[uint32]entry[V]

// level holds the buckets of one hot length.
type level[V any] struct {
	bits    uint8
	mask    uint32
	buckets [bucketsPerLen]atomic.Pointer[bucket[V]]
}

// Matcher is the hashed index over the hot prefix lengths.
//
// Lookups are lock-free, each bucket map is immutable once published.
// Writers copy the touched buckets and are serialized by an internal mutex.
type Matcher[V any] struct {
	mu sync.Mutex

	// ordered from the longest to the shortest length
	levels []*level[V]

	// hot[bits] is set for every indexed length
	hot [cidr.MaxBits + 1]bool

	size atomic.Int64
}

// New returns a matcher for the given hot lengths.
// Duplicates are ignored, lengths must be in 0..32.
func New[V any](hotLens []int) (*Matcher[V], error) {
	m := &Matcher[V]{}

	lens := slices.Clone(hotLens)
	slices.Sort(lens)
	lens = slices.Compact(lens)
	slices.Reverse(lens)

	for _, l := range lens {
		if l < 0 || l > cidr.MaxBits {
			return nil, fmt.Errorf("hot length %d out of range 0..%d", l, cidr.MaxBits)
		}
		m.hot[l] = true
		m.levels = append(m.levels, &level[V]{bits: uint8(l), mask: cidr.Mask(uint8(l))})
	}
	return m, nil
}

// HotLens returns the indexed lengths, longest first.
func (m *Matcher[V]) HotLens() []int {
	lens := make([]int, 0, len(m.levels))
	for _, lv := range m.levels {
		lens = append(lens, int(lv.bits))
	}
	return lens
}

// IsHot reports whether prefixes of this length are indexed.
func (m *Matcher[V]) IsHot(bits uint8) bool {
	return bits <= cidr.MaxBits && m.hot[bits]
}

// Len returns the number of indexed hot prefixes.
func (m *Matcher[V]) Len() int {
	return int(m.size.Load())
}

// Lookup probes the hot lengths from the longest to the shortest.
// The first entry found decides, see [Result].
func (m *Matcher[V]) Lookup(ip uint32) (val V, bits uint8, res Result) {
	for _, lv := range m.levels {
		key := ip & lv.mask
		b := lv.buckets[cidr.Top(key, 8)].Load()
		if b == nil {
			continue
		}
		e, found := (*b)[key]
		if !found {
			continue
		}
		if e.ok && e.shadowed == 0 {
			return e.val, lv.bits, Hit
		}
		return val, 0, Ambiguous
	}
	return val, 0, Miss
}

// Probe is the per address state of a batch lookup.
type Probe[V any] struct {
	Addr uint32
	Val  V
	Bits uint8
	Res  Result

	done bool
}

// LookupBatch resolves all probes, one hot length at a time across the
// whole batch. Each probe ends up exactly as a single Lookup would set it.
func (m *Matcher[V]) LookupBatch(probes []Probe[V]) {
	for i := range probes {
		probes[i].Res, probes[i].done = Miss, false
	}

	for _, lv := range m.levels {
		for i := range probes {
			p := &probes[i]
			if p.done {
				continue
			}
			key := p.Addr & lv.mask
			b := lv.buckets[cidr.Top(key, 8)].Load()
			if b == nil {
				continue
			}
			e, found := (*b)[key]
			if !found {
				continue
			}
			p.done = true
			if e.ok && e.shadowed == 0 {
				p.Val, p.Bits, p.Res = e.val, lv.bits, Hit
			} else {
				p.Res = Ambiguous
			}
		}
	}
}

// Insert indexes addr/bits. For a hot length the value is stored, replacing
// an existing one. For any other length the shadow counters of the covering
// hot ranges are incremented, but only if fresh is set; an update of an
// already known non-hot prefix changes nothing here.
func (m *Matcher[V]) Insert(addr uint32, bits uint8, val V, fresh bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsHot(bits) {
		lv := m.levelOf(bits)
		m.modify(lv, addr, func(e entry[V], found bool) (entry[V], bool) {
			if !e.ok {
				m.size.Add(1)
			}
			e.val, e.ok = val, true
			return e, true
		})
		return
	}

	if !fresh {
		return
	}
	for _, lv := range m.levels {
		if lv.bits >= bits {
			continue
		}
		m.modify(lv, addr&lv.mask, func(e entry[V], found bool) (entry[V], bool) {
			e.shadowed++
			return e, true
		})
	}
}

// Delete removes addr/bits from the index, the counterpart of a fresh Insert.
func (m *Matcher[V]) Delete(addr uint32, bits uint8) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsHot(bits) {
		lv := m.levelOf(bits)
		m.modify(lv, addr, func(e entry[V], found bool) (entry[V], bool) {
			if !found || !e.ok {
				return e, found
			}
			m.size.Add(-1)
			var zero V
			e.val, e.ok = zero, false
			return e, e.shadowed > 0
		})
		return
	}

	for _, lv := range m.levels {
		if lv.bits >= bits {
			continue
		}
		m.modify(lv, addr&lv.mask, func(e entry[V], found bool) (entry[V], bool) {
			if !found {
				return e, false
			}
			if e.shadowed > 0 {
				e.shadowed--
			}
			return e, e.ok || e.shadowed > 0
		})
	}
}

func (m *Matcher[V]) levelOf(bits uint8) *level[V] {
	for _, lv := range m.levels {
		if lv.bits == bits {
			return lv
		}
	}
	panic(fmt.Sprintf("logic error, no level for hot length %d", bits))
}

// modify applies fn to the entry at key copy-on-write: the bucket map is
// cloned, changed and published. fn returns the new entry and whether
// it should be kept at all.
func (m *Matcher[V]) modify(lv *level[V], key uint32, fn func(e entry[V], found bool) (entry[V], bool)) {
	slot := &lv.buckets[cidr.Top(key, 8)]

	var old bucket[V]
	if p := slot.Load(); p != nil {
		old = *p
	}
	e, found := old[key]
	e, keep := fn(e, found)

	if !found && !keep {
		return
	}

	nb := make(bucket[V], len(old)+1)
	for k, v := range old {
		nb[k] = v
	}
	if keep {
		nb[key] = e
	} else {
		delete(nb, key)
	}

	if len(nb) == 0 {
		slot.Store(nil)
		return
	}
	slot.Store(&nb)
}
