// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package hint narrows the cold path of a lookup.
//
// Prefixes are grouped into clusters by their leading bits. A prefix at
// least as long as the cluster key belongs to exactly one cluster; shorter
// prefixes belong to the wide cluster, which is tagged onto every cluster
// key it covers. For an address the index returns the clusters that may
// hold a match together with the prefix lengths present in them, so the
// trie walk can stop early or be skipped altogether.
//
// The index is sound, never precise: a cluster holding a matching prefix
// is always returned, extra clusters and extra lengths are allowed.
// Between two rebuilds writers widen the affected clusters before a new
// prefix gets visible, deletes are simply ignored until the next rebuild.
package hint

import (
	"fmt"
	"iter"
	"math/bits"
	"sync/atomic"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/bitset"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// MaxClusterBits limits the cluster key to the top byte, 256 clusters.
const MaxClusterBits = 8

// Cluster identifies a group of prefixes.
type Cluster uint16

// Wide is the cluster of all prefixes shorter than the cluster key.
const Wide Cluster = 1 << MaxClusterBits

func (c Cluster) String() string {
	if c == Wide {
		return "wide"
	}
	return fmt.Sprintf("c%d", uint16(c))
}

// Candidates is the bounded, ordered answer of the index for one address:
// the specific cluster first, then the wide cluster.
type Candidates struct {
	ids [2]Cluster
	n   uint8

	// Lens has bit i set if a prefix of length i may match.
	Lens uint64
}

// IDs returns the candidate clusters.
func (c Candidates) IDs() []Cluster {
	return c.ids[:c.n]
}

// Empty reports that no prefix can match the address.
func (c Candidates) Empty() bool {
	return c.n == 0
}

// MaxBits is the longest prefix length that may match, 0 if empty.
func (c Candidates) MaxBits() uint8 {
	if c.Lens == 0 {
		return 0
	}
	return uint8(bits.Len64(c.Lens) - 1)
}

func (c *Candidates) add(id Cluster, lens uint64) {
	c.ids[c.n] = id
	c.n++
	c.Lens |= lens
}

// snapshot is immutable once published.
type snapshot struct {
	populated bitset.BitSet256 // clusters with at least one prefix
	covered   bitset.BitSet256 // cluster keys covered by a wide prefix
	lens      [1 << MaxClusterBits]uint64
	wideLens  uint64
	size      int
}

// Index is the cluster index. Candidates is lock-free,
// Widen may be called concurrently, Rebuild must be serialized
// with all writers by the caller.
type Index struct {
	keyBits uint8

	snap atomic.Pointer[snapshot]

	// clusters (and the wide cluster) changed since the last rebuild
	dirty     bitset.Atomic256
	wideDirty atomic.Bool

	rebuilds atomic.Uint64
}

// New returns an empty index clustering on the top keyBits of a prefix.
func New(keyBits int) (*Index, error) {
	if keyBits < 1 || keyBits > MaxClusterBits {
		return nil, fmt.Errorf("cluster bits %d out of range 1..%d", keyBits, MaxClusterBits)
	}
	x := &Index{keyBits: uint8(keyBits)}
	x.snap.Store(&snapshot{})
	return x, nil
}

// NumClusters returns the number of clusters, without the wide cluster.
func (x *Index) NumClusters() int {
	return 1 << x.keyBits
}

// ClusterOf returns the cluster a prefix belongs to.
func (x *Index) ClusterOf(addr uint32, pfxBits uint8) Cluster {
	if pfxBits < x.keyBits {
		return Wide
	}
	return Cluster(cidr.Top(addr, x.keyBits))
}

// Candidates returns the clusters that may hold a prefix matching ip.
func (x *Index) Candidates(ip uint32) (c Candidates) {
	key := cidr.Top(ip, x.keyBits)

	// load the dirty marks before the snapshot, a rebuild clears
	// them only after the new snapshot is published
	dirty := x.dirty.Test(key)
	wideDirty := x.wideDirty.Load()
	s := x.snap.Load()

	switch {
	case dirty:
		c.add(Cluster(key), cidr.AllLens)
	case s.populated.Test(key):
		c.add(Cluster(key), s.lens[key])
	}

	switch {
	case wideDirty:
		c.add(Wide, cidr.AllLens&(1<<x.keyBits-1))
	case s.covered.Test(key):
		c.add(Wide, s.wideLens)
	}
	return c
}

// Widen makes the index sound for a prefix about to be inserted.
// It must be called before the prefix gets visible to readers.
func (x *Index) Widen(addr uint32, pfxBits uint8) {
	if id := x.ClusterOf(addr, pfxBits); id != Wide {
		x.dirty.Set(uint(id))
		return
	}
	x.wideDirty.Store(true)
}

// Rebuild replaces the index with one built from the complete prefix set.
// prefixes must yield every live prefix exactly once, as addr and length.
// No writer may run concurrently, prefixes inserted meanwhile would be lost.
func (x *Index) Rebuild(prefixes iter.Seq2[uint32, uint8]) {
	s := &snapshot{}

	for addr, pfxBits := range prefixes {
		s.size++
		if pfxBits >= x.keyBits {
			key := cidr.Top(addr, x.keyBits)
			s.populated.Set(key)
			s.lens[key] |= 1 << pfxBits
			continue
		}

		// tag the wide prefix onto all cluster keys it covers
		lo := cidr.Top(addr, x.keyBits)
		hi := lo | (1<<(x.keyBits-pfxBits) - 1)
		s.covered.SetRange(lo, hi)
		s.wideLens |= 1 << pfxBits
	}

	x.snap.Store(s)
	x.dirty.Reset()
	x.wideDirty.Store(false)
	x.rebuilds.Add(1)
}

// Stats of the current snapshot.
type Stats struct {
	Prefixes      int
	Populated     int
	Covered       int
	DirtyClusters int
	WideDirty     bool
	Rebuilds      uint64
}

// Stats returns a point in time view of the index.
func (x *Index) Stats() Stats {
	s := x.snap.Load()
	dirty := x.dirty.Load()
	return Stats{
		Prefixes:      s.size,
		Populated:     s.populated.Size(),
		Covered:       s.covered.Size(),
		DirtyClusters: dirty.Size(),
		WideDirty:     x.wideDirty.Load(),
		Rebuilds:      x.rebuilds.Load(),
	}
}
