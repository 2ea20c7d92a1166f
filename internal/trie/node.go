// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package trie

import "github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"

// node is a path compressed binary trie node. It carries its full,
// masked key, so a child may skip any number of bits below its parent.
//
// Once a node is reachable from a published root it is never modified,
// writers clone the path from the root down to the changed node.
type node[V any] struct {
	addr uint32
	bits uint8

	// ok is set only if a prefix terminates at this node,
	// glue nodes created by a split carry no value.
	ok  bool
	val V

	// children, selected by the address bit at position bits
	child [2]*node[V]
}

// cloneFlat returns a shallow copy, the children are shared.
func (n *node[V]) cloneFlat() *node[V] {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// contains reports whether ip lies inside the prefix of n.
func (n *node[V]) contains(ip uint32) bool {
	return cidr.Covers(n.addr, n.bits, ip)
}

// isLeafless reports a node with neither value nor children.
func (n *node[V]) isLeafless() bool {
	return !n.ok && n.child[0] == nil && n.child[1] == nil
}

// insertPersist returns the new subtree root with addr/bits set to val.
// Nodes on the path are cloned, everything else is shared.
func insertPersist[V any](n *node[V], addr uint32, bits uint8, val V) (root *node[V], old V, exists bool) {
	if n == nil {
		return &node[V]{addr: addr, bits: bits, ok: true, val: val}, old, false
	}

	common := cidr.CommonLen(n.addr, addr, min(n.bits, bits))

	switch {
	case common == n.bits && common == bits:
		// same prefix, update in place of a clone
		c := n.cloneFlat()
		old, exists = n.val, n.ok
		c.ok, c.val = true, val
		return c, old, exists

	case common == n.bits:
		// n covers the new prefix, go down
		b := cidr.Bit(addr, n.bits)
		c := n.cloneFlat()
		c.child[b], old, exists = insertPersist(n.child[b], addr, bits, val)
		return c, old, exists

	case common == bits:
		// the new prefix covers n, n becomes its child
		c := &node[V]{addr: addr, bits: bits, ok: true, val: val}
		c.child[cidr.Bit(n.addr, bits)] = n
		return c, old, false

	default:
		// diverging paths, split with a glue node
		glue := &node[V]{addr: addr & cidr.Mask(common), bits: common}
		glue.child[cidr.Bit(addr, common)] = &node[V]{addr: addr, bits: bits, ok: true, val: val}
		glue.child[cidr.Bit(n.addr, common)] = n
		return glue, old, false
	}
}

// deletePersist returns the new subtree root without addr/bits.
// If the prefix is not present the returned root is n itself.
func deletePersist[V any](n *node[V], addr uint32, bits uint8) (root *node[V], old V, found bool) {
	if n == nil || n.bits > bits || !n.contains(addr) {
		return n, old, false
	}

	if n.bits == bits {
		if !n.ok {
			return n, old, false
		}
		old = n.val

		switch {
		case n.child[0] != nil && n.child[1] != nil:
			// keep as glue node
			c := n.cloneFlat()
			c.ok = false
			var zero V
			c.val = zero
			return c, old, true
		case n.child[0] != nil:
			return n.child[0], old, true
		case n.child[1] != nil:
			return n.child[1], old, true
		default:
			return nil, old, true
		}
	}

	b := cidr.Bit(addr, n.bits)
	newChild, old, found := deletePersist(n.child[b], addr, bits)
	if !found {
		return n, old, false
	}

	c := n.cloneFlat()
	c.child[b] = newChild

	// purge dangling glue nodes
	if !c.ok {
		switch {
		case c.isLeafless():
			return nil, old, true
		case c.child[0] == nil:
			return c.child[1], old, true
		case c.child[1] == nil:
			return c.child[0], old, true
		}
	}
	return c, old, true
}
