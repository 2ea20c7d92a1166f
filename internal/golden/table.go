// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package golden provides a simple and slow IPv4 route table,
// implemented as a slice of prefixes and values, as the golden reference
// for the lookup tiers in tests.
package golden

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// Table is the golden reference table.
type Table[V any] []Item[V]

// Item is one prefix with its value. Addr is always masked.
type Item[V any] struct {
	Addr uint32
	Bits uint8
	Val  V
}

func (g Item[V]) String() string {
	return fmt.Sprintf("(%d.%d.%d.%d/%d, %v)", g.Addr>>24, g.Addr>>16&0xff, g.Addr>>8&0xff, g.Addr&0xff, g.Bits, g.Val)
}

// Insert adds or replaces addr/bits.
func (t *Table[V]) Insert(addr uint32, bits uint8, val V) {
	addr &= cidr.Mask(bits)
	for i, item := range *t {
		if item.Addr == addr && item.Bits == bits {
			(*t)[i].Val = val // de-dupe
			return
		}
	}
	*t = append(*t, Item[V]{addr, bits, val})
}

// Delete removes addr/bits and reports whether it existed.
func (t *Table[V]) Delete(addr uint32, bits uint8) (exists bool) {
	addr &= cidr.Mask(bits)
	for i, item := range *t {
		if item.Addr == addr && item.Bits == bits {
			*t = slices.Delete(*t, i, i+1)
			return true
		}
	}
	return false
}

// Get returns the value of exactly addr/bits.
func (t Table[V]) Get(addr uint32, bits uint8) (val V, ok bool) {
	addr &= cidr.Mask(bits)
	for _, item := range t {
		if item.Addr == addr && item.Bits == bits {
			return item.Val, true
		}
	}
	return val, false
}

// Lookup is the brute force longest prefix match.
func (t Table[V]) Lookup(ip uint32) (val V, bits uint8, ok bool) {
	bestLen := -1

	for _, item := range t {
		if cidr.Covers(item.Addr, item.Bits, ip) && int(item.Bits) > bestLen {
			val = item.Val
			bits = item.Bits
			ok = true
			bestLen = int(item.Bits)
		}
	}
	return val, bits, ok
}

// Sort, inplace by address and length.
func (t *Table[V]) Sort() {
	slices.SortFunc(*t, func(a, b Item[V]) int {
		return cidr.Compare(a.Addr, a.Bits, b.Addr, b.Bits)
	})
}

// RandomPrefix returns a masked random prefix with a random length 0..32.
func RandomPrefix(prng *rand.Rand) (addr uint32, bits uint8) {
	bits = uint8(prng.IntN(cidr.MaxBits + 1))
	return prng.Uint32() & cidr.Mask(bits), bits
}

// RandomClusteredPrefix returns prefixes from a few /8 blocks,
// producing overlapping routes much more often than RandomPrefix.
func RandomClusteredPrefix(prng *rand.Rand) (addr uint32, bits uint8) {
	bits = uint8(prng.IntN(cidr.MaxBits + 1))
	addr = uint32(10+prng.IntN(4))<<24 | prng.Uint32()&0x00ffffff
	return addr & cidr.Mask(bits), bits
}

// RandomAddr returns an address, biased into the clustered blocks.
func RandomAddr(prng *rand.Rand) uint32 {
	if prng.IntN(2) == 0 {
		return prng.Uint32()
	}
	return uint32(10+prng.IntN(4))<<24 | prng.Uint32()&0x00ffffff
}
