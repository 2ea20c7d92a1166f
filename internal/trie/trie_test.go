// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package trie

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/golden"
)

// workLoadN to adjust loops for tests with -short
func workLoadN() int {
	if testing.Short() {
		return 100
	}
	return 1_000
}

func TestZeroValue(t *testing.T) {
	t.Parallel()
	var tr Trie[int]

	_, _, ok := tr.LongestMatch(0x0b000000, cidr.MaxBits)
	assert.False(t, ok, "empty trie must not match")
	assert.Equal(t, 0, tr.Len())

	_, found := tr.Delete(0x0a000000, 8)
	assert.False(t, found)

	for k := range tr.All() {
		t.Fatalf("empty trie must not yield, got %v", k)
	}
}

func TestRegression(t *testing.T) {
	t.Parallel()

	t.Run("default_route", func(t *testing.T) {
		var tr Trie[int]
		tr.Insert(0, 0, 1)
		val, bits, ok := tr.LongestMatch(0xdeadbeef, cidr.MaxBits)
		require.True(t, ok)
		assert.Equal(t, 1, val)
		assert.Equal(t, uint8(0), bits)
	})

	t.Run("parent_inserted_after_child", func(t *testing.T) {
		var tr Trie[int]
		tr.Insert(0x88140000, 16, 1) // 136.20.0.0/16
		tr.Insert(0x8814c93e, 32, 2) // 136.20.201.62/32

		var tr2 Trie[int]
		tr2.Insert(0x8814c93e, 32, 2)
		tr2.Insert(0x88140000, 16, 1)

		for _, ip := range []uint32{0x8814368b, 0x8814c93e} {
			v1, _, ok1 := tr.LongestMatch(ip, cidr.MaxBits)
			v2, _, ok2 := tr2.LongestMatch(ip, cidr.MaxBits)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, v1, v2, "lookup is insertion order dependent for %#08x", ip)
		}
	})

	t.Run("glue_node_collapses", func(t *testing.T) {
		var tr Trie[int]
		tr.Insert(0x0a000000, 16, 1) // 10.0.0.0/16
		tr.Insert(0x0a800000, 16, 2) // 10.128.0.0/16, forces a glue at /8

		_, found := tr.Delete(0x0a000000, 16)
		require.True(t, found)

		root := tr.root.Load()
		require.NotNil(t, root)
		assert.True(t, root.ok, "glue node must be purged")
		assert.Equal(t, uint32(0x0a800000), root.addr)
	})

	t.Run("inner_prefix_with_two_children", func(t *testing.T) {
		var tr Trie[int]
		tr.Insert(0x0a000000, 8, 8)
		tr.Insert(0x0a000000, 16, 16)
		tr.Insert(0x0a800000, 16, 17)

		_, found := tr.Delete(0x0a000000, 8)
		require.True(t, found)

		_, _, ok := tr.LongestMatch(0x0a400000, cidr.MaxBits)
		assert.False(t, ok, "10.64.0.0 matched only the deleted /8")

		val, _, ok := tr.LongestMatch(0x0a800001, cidr.MaxBits)
		require.True(t, ok)
		assert.Equal(t, 17, val)
	})
}

func TestInsertUpdate(t *testing.T) {
	t.Parallel()
	var tr Trie[string]

	_, exists := tr.Insert(0x0a000000, 8, "a")
	assert.False(t, exists)

	old, exists := tr.Insert(0x0a000000, 8, "b")
	assert.True(t, exists)
	assert.Equal(t, "a", old)
	assert.Equal(t, 1, tr.Len())

	val, ok := tr.Get(0x0a000000, 8)
	require.True(t, ok)
	assert.Equal(t, "b", val)

	_, ok = tr.Get(0x0a000000, 16)
	assert.False(t, ok)
}

func TestLongestMatchBound(t *testing.T) {
	t.Parallel()
	var tr Trie[int]
	tr.Insert(0x0a000000, 8, 8)
	tr.Insert(0x0a010000, 16, 16)
	tr.Insert(0x0a010200, 24, 24)

	tests := []struct {
		maxBits uint8
		want    int
	}{
		{32, 24},
		{24, 24},
		{23, 16},
		{16, 16},
		{8, 8},
	}
	for _, tc := range tests {
		val, _, ok := tr.LongestMatch(0x0a010203, tc.maxBits)
		require.True(t, ok)
		assert.Equal(t, tc.want, val, "maxBits %d", tc.maxBits)
	}

	_, _, ok := tr.LongestMatch(0x0a010203, 7)
	assert.False(t, ok)
}

func TestLookupCompare(t *testing.T) {
	t.Parallel()
	prng := rand.New(rand.NewPCG(42, 42))

	var tr Trie[int]
	gold := golden.Table[int]{}

	for i := range workLoadN() {
		addr, bits := golden.RandomClusteredPrefix(prng)
		tr.Insert(addr, bits, i)
		gold.Insert(addr, bits, i)
	}
	require.Equal(t, len(gold), tr.Len())

	for range 10 * workLoadN() {
		ip := golden.RandomAddr(prng)
		gotVal, gotBits, gotOK := tr.LongestMatch(ip, cidr.MaxBits)
		wantVal, wantBits, wantOK := gold.Lookup(ip)
		if gotVal != wantVal || gotBits != wantBits || gotOK != wantOK {
			t.Fatalf("LongestMatch(%#08x) = (%d, %d, %v), want (%d, %d, %v)",
				ip, gotVal, gotBits, gotOK, wantVal, wantBits, wantOK)
		}
	}
}

func TestDeleteCompare(t *testing.T) {
	t.Parallel()
	prng := rand.New(rand.NewPCG(7, 7))

	var tr Trie[int]
	gold := golden.Table[int]{}

	var all []golden.Item[int]
	for i := range workLoadN() {
		addr, bits := golden.RandomClusteredPrefix(prng)
		tr.Insert(addr, bits, i)
		gold.Insert(addr, bits, i)
		all = append(all, golden.Item[int]{Addr: addr, Bits: bits})
	}

	// delete every second inserted prefix, duplicates must report not found
	for i, item := range all {
		if i%2 == 1 {
			continue
		}
		_, gotFound := tr.Delete(item.Addr, item.Bits)
		wantFound := gold.Delete(item.Addr, item.Bits)
		require.Equal(t, wantFound, gotFound, "Delete(%v)", item)
	}
	require.Equal(t, len(gold), tr.Len())

	for range 10 * workLoadN() {
		ip := golden.RandomAddr(prng)
		gotVal, gotBits, gotOK := tr.LongestMatch(ip, cidr.MaxBits)
		wantVal, wantBits, wantOK := gold.Lookup(ip)
		if gotVal != wantVal || gotBits != wantBits || gotOK != wantOK {
			t.Fatalf("LongestMatch(%#08x) = (%d, %d, %v), want (%d, %d, %v)",
				ip, gotVal, gotBits, gotOK, wantVal, wantBits, wantOK)
		}
	}
}

func TestDeleteIsReverseOfInsert(t *testing.T) {
	t.Parallel()
	prng := rand.New(rand.NewPCG(1, 2))

	var tr Trie[int]
	var items []golden.Item[int]
	for i := range workLoadN() {
		addr, bits := golden.RandomPrefix(prng)
		if _, exists := tr.Insert(addr, bits, i); !exists {
			items = append(items, golden.Item[int]{Addr: addr, Bits: bits})
		}
	}

	for i := len(items) - 1; i >= 0; i-- {
		_, found := tr.Delete(items[i].Addr, items[i].Bits)
		require.True(t, found, "Delete(%v)", items[i])
	}
	assert.Equal(t, 0, tr.Len())
	assert.Nil(t, tr.root.Load(), "all nodes must be purged")
}

func TestAllSorted(t *testing.T) {
	t.Parallel()
	prng := rand.New(rand.NewPCG(3, 4))

	var tr Trie[int]
	gold := golden.Table[int]{}
	for i := range workLoadN() {
		addr, bits := golden.RandomClusteredPrefix(prng)
		tr.Insert(addr, bits, i)
		gold.Insert(addr, bits, i)
	}
	gold.Sort()

	var got golden.Table[int]
	for k, val := range tr.All() {
		got = append(got, golden.Item[int]{Addr: k.Addr, Bits: k.Bits, Val: val})
	}
	assert.Equal(t, gold, got)

	n := 0
	for range tr.All() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n, "iteration must stop on break")
}

// TestPersistSnapshot checks that a root loaded before a write
// still describes the old tree after the write.
func TestPersistSnapshot(t *testing.T) {
	t.Parallel()
	var tr Trie[int]
	tr.Insert(0x0a000000, 8, 8)
	tr.Insert(0x0a010000, 16, 16)

	before := tr.root.Load()
	tr.Delete(0x0a010000, 16)
	tr.Insert(0x0a010200, 24, 24)

	old := Trie[int]{}
	old.root.Store(before)
	val, _, ok := old.LongestMatch(0x0a010203, cidr.MaxBits)
	require.True(t, ok)
	assert.Equal(t, 16, val, "published nodes must never be modified")
}

func TestConcurrentReadersWriter(t *testing.T) {
	t.Parallel()
	var tr Trie[int]
	tr.Insert(0x0a000000, 8, 8)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				val, bits, ok := tr.LongestMatch(0x0a010203, cidr.MaxBits)
				if !ok || (bits == 8 && val != 8) || (bits == 16 && val != 16) {
					t.Errorf("inconsistent read: (%d, %d, %v)", val, bits, ok)
					return
				}
			}
		}()
	}

	for range workLoadN() {
		tr.Insert(0x0a010000, 16, 16)
		tr.Delete(0x0a010000, 16)
	}
	close(stop)
	wg.Wait()
}

func BenchmarkLongestMatch(b *testing.B) {
	prng := rand.New(rand.NewPCG(42, 42))
	var tr Trie[int]
	for i := range 100_000 {
		addr, bits := golden.RandomPrefix(prng)
		tr.Insert(addr, bits, i)
	}
	probes := make([]uint32, 1024)
	for i := range probes {
		probes[i] = prng.Uint32()
	}

	b.ResetTimer()
	for i := range b.N {
		tr.LongestMatch(probes[i&1023], cidr.MaxBits)
	}
}
