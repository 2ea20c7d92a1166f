// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package trie implements the authoritative store of the lookup engine,
// a path compressed binary trie over IPv4 prefixes.
//
// Readers are lock-free: every lookup loads the current root once and
// walks an immutable tree. Writers clone the path they touch and publish
// the new root atomically, so a reader sees either the complete old or
// the complete new tree, never a partially linked node.
//
// Writers must be serialized by the caller.
package trie

import (
	"iter"
	"sync/atomic"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// Trie is a copy-on-write prefix trie with payload V.
// The zero value is an empty trie, ready to use.
type Trie[V any] struct {
	root atomic.Pointer[node[V]]
	size atomic.Int64
}

// Insert adds addr/bits with value val, addr must be masked.
// If the prefix is already present its value is replaced and the
// previous value is returned with exists set.
func (t *Trie[V]) Insert(addr uint32, bits uint8, val V) (old V, exists bool) {
	root, old, exists := insertPersist(t.root.Load(), addr, bits, val)
	t.root.Store(root)
	if !exists {
		t.size.Add(1)
	}
	return old, exists
}

// Delete removes addr/bits and returns its value.
// found is false if the prefix was not present, the trie is unchanged then.
func (t *Trie[V]) Delete(addr uint32, bits uint8) (old V, found bool) {
	root, old, found := deletePersist(t.root.Load(), addr, bits)
	if !found {
		return old, false
	}
	t.root.Store(root)
	t.size.Add(-1)
	return old, true
}

// Get returns the value stored for exactly addr/bits.
func (t *Trie[V]) Get(addr uint32, bits uint8) (val V, ok bool) {
	for n := t.root.Load(); n != nil; {
		if n.bits > bits || !n.contains(addr) {
			return
		}
		if n.bits == bits {
			return n.val, n.ok
		}
		n = n.child[cidr.Bit(addr, n.bits)]
	}
	return
}

// LongestMatch returns the value of the most specific prefix containing ip.
// The descent stops at prefixes longer than maxBits, callers without a
// bound pass cidr.MaxBits.
func (t *Trie[V]) LongestMatch(ip uint32, maxBits uint8) (val V, bits uint8, ok bool) {
	for n := t.root.Load(); n != nil; {
		if n.bits > maxBits || !n.contains(ip) {
			break
		}
		if n.ok {
			val, bits, ok = n.val, n.bits, true
		}
		if n.bits == cidr.MaxBits {
			break
		}
		n = n.child[cidr.Bit(ip, n.bits)]
	}
	return
}

// Len returns the number of stored prefixes.
func (t *Trie[V]) Len() int {
	return int(t.size.Load())
}

// Key of a stored prefix.
type Key struct {
	Addr uint32
	Bits uint8
}

// All returns an iterator over all stored prefixes in pre-order, that is
// in ascending address order with covering prefixes first.
// Every iteration runs on a single snapshot, concurrent writers are not seen.
func (t *Trie[V]) All() iter.Seq2[Key, V] {
	return func(yield func(Key, V) bool) {
		walk(t.root.Load(), yield)
	}
}

func walk[V any](n *node[V], yield func(Key, V) bool) bool {
	if n == nil {
		return true
	}
	if n.ok && !yield(Key{n.addr, n.bits}, n.val) {
		return false
	}
	return walk(n.child[0], yield) && walk(n.child[1], yield)
}
