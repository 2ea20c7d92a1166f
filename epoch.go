// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
)

// region counts the writes to a part of the address space.
//
// A writer increments begin before it changes anything and end when it
// is done. A reader loads end first and begin second: if both are equal
// no write was in flight, and as long as end stays the same no write
// has finished since.
type region struct {
	begin atomic.Uint64
	end   atomic.Uint64
	_     cpu.CacheLinePad
}

// epochs versions the address regions of a table.
//
// Every address belongs to the cluster of its top bits and to the cover
// region, the home of all prefixes shorter than the cluster key. A prefix
// change can only alter lookups inside its own region, so the pair of
// end counters is a version for all addresses of a cluster.
type epochs struct {
	keyBits  uint8
	clusters []region
	cover    region
}

func newEpochs(keyBits uint8) *epochs {
	return &epochs{
		keyBits:  keyBits,
		clusters: make([]region, 1<<keyBits),
	}
}

// regionOf returns the region a prefix belongs to.
func (e *epochs) regionOf(p Prefix) *region {
	if p.Len < e.keyBits {
		return &e.cover
	}
	return &e.clusters[cidr.Top(p.Addr, e.keyBits)]
}

// beginWrite must be paired with endWrite on the same region.
func (e *epochs) beginWrite(r *region) {
	r.begin.Add(1)
}

func (e *epochs) endWrite(r *region) {
	r.end.Add(1)
}

// token is the current version for lookups of addr.
// stable is false while a write to the regions of addr is in flight.
func (e *epochs) token(addr uint32) (tok uint64, stable bool) {
	c := &e.clusters[cidr.Top(addr, e.keyBits)]

	ce := c.end.Load()
	cb := c.begin.Load()
	ve := e.cover.end.Load()
	vb := e.cover.begin.Load()

	return ce + ve, ce == cb && ve == vb
}

// unchanged reports whether no write to the regions of addr finished
// or started since token returned tok as stable.
func (e *epochs) unchanged(addr uint32, tok uint64) bool {
	c := &e.clusters[cidr.Top(addr, e.keyBits)]

	cb := c.begin.Load()
	vb := e.cover.begin.Load()
	return cb+vb == tok
}
