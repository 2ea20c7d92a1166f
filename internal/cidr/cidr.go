// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package cidr holds the IPv4 bit arithmetic shared by the lookup tiers.
// Addresses are uint32 in host order, bit 0 is the most significant bit.
package cidr

import (
	"cmp"
	"math/bits"
)

// MaxBits is the IPv4 address width.
const MaxBits = 32

// AllLens has one bit set for every prefix length 0..32.
const AllLens uint64 = 1<<(MaxBits+1) - 1

// Mask returns the netmask for a prefix length, Mask(0) is 0.
func Mask(bits uint8) uint32 {
	if bits == 0 {
		return 0
	}
	return ^uint32(0) << (MaxBits - uint32(bits))
}

// Bit returns the address bit at pos, counted from the most significant bit.
// pos must be < 32.
func Bit(addr uint32, pos uint8) uint {
	return uint(addr>>(MaxBits-1-uint32(pos))) & 1
}

// Top returns the top n bits of addr as a small integer, Top(addr, 0) is 0.
func Top(addr uint32, n uint8) uint {
	if n == 0 {
		return 0
	}
	return uint(addr >> (MaxBits - uint32(n)))
}

// Covers reports whether the prefix addr/bits contains ip.
// addr is expected to be masked.
func Covers(addr uint32, bits uint8, ip uint32) bool {
	return (ip^addr)&Mask(bits) == 0
}

// CommonLen returns the number of leading bits a and b share, capped at limit.
func CommonLen(a, b uint32, limit uint8) uint8 {
	return min(uint8(bits.LeadingZeros32(a^b)), limit)
}

// Compare orders prefixes by address first, then by length.
func Compare(aAddr uint32, aBits uint8, bAddr uint32, bBits uint8) int {
	if c := cmp.Compare(aAddr, bAddr); c != 0 {
		return c
	}
	return cmp.Compare(aBits, bBits)
}
