// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package bitset implements fixed size bitsets over [0..255], one bit per
// hint cluster.
//
// BitSet256 is a plain value type for immutable snapshots,
// Atomic256 is the concurrently writable variant for dirty marks.
package bitset

import (
	"fmt"
	"math/bits"
	"sync/atomic"
)

//   i>>6 is the word index and i&63 the bit index of bit i,
//   not factored out as functions to keep the methods inlineable.

// BitSet256 represents a fixed size bitset from [0..255]
type BitSet256 [4]uint64

func (b *BitSet256) String() string {
	return fmt.Sprint(b.All())
}

// Set sets the bit, it panic's if bit is > 255 by intention!
func (b *BitSet256) Set(bit uint) {
	b[bit>>6] |= 1 << (bit & 63)
}

// SetRange sets all bits in [lo, hi].
func (b *BitSet256) SetRange(lo, hi uint) {
	for i := lo; i <= hi && i < 256; i++ {
		b[i>>6] |= 1 << (i & 63)
	}
}

// Test if the bit is set.
func (b *BitSet256) Test(bit uint) (ok bool) {
	if x := int(bit >> 6); x < 4 {
		return b[x&3]&(1<<(bit&63)) != 0 // [x&3] is bounds check elimination (BCE)
	}
	return
}

// All returns all set bits in ascending order.
func (b *BitSet256) All() []uint {
	buf := make([]uint, 0, b.Size())
	for wIdx, word := range b {
		for ; word != 0; word &= word - 1 {
			buf = append(buf, uint(wIdx<<6+bits.TrailingZeros64(word)))
		}
	}
	return buf
}

// Size is the number of set bits (popcount).
func (b *BitSet256) Size() (cnt int) {
	cnt += bits.OnesCount64(b[0])
	cnt += bits.OnesCount64(b[1])
	cnt += bits.OnesCount64(b[2])
	cnt += bits.OnesCount64(b[3])
	return
}

// Atomic256 is a BitSet256 whose bits may be set and tested concurrently.
// The zero value is ready to use.
type Atomic256 [4]atomic.Uint64

// Set sets the bit, it panic's if bit is > 255.
func (a *Atomic256) Set(bit uint) {
	w := &a[bit>>6]
	mask := uint64(1) << (bit & 63)
	for {
		old := w.Load()
		if old&mask != 0 || w.CompareAndSwap(old, old|mask) {
			return
		}
	}
}

// Test if the bit is set.
func (a *Atomic256) Test(bit uint) bool {
	if x := int(bit >> 6); x < 4 {
		return a[x&3].Load()&(1<<(bit&63)) != 0
	}
	return false
}

// Load returns a point in time copy, word by word.
func (a *Atomic256) Load() (bs BitSet256) {
	bs[0] = a[0].Load()
	bs[1] = a[1].Load()
	bs[2] = a[2].Load()
	bs[3] = a[3].Load()
	return
}

// Reset clears all bits.
func (a *Atomic256) Reset() {
	a[0].Store(0)
	a[1].Store(0)
	a[2].Store(0)
	a[3].Store(0)
}
