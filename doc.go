// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package tcam provides a tiered longest-prefix-match engine for IPv4
// routing decisions, a software rendition of a hardware TCAM.
//
// A lookup passes up to three tiers, the first one able to decide wins:
//
//   - HotCache: a sharded LRU of recently resolved addresses,
//     including negative results.
//   - PrefixMatcher: hashed buckets for a few hot prefix lengths,
//     bounded work independent of the table size.
//   - Trie: the authoritative path-compressed binary trie, the
//     walk guided and bounded by a cluster hint index.
//
// The cache and the matcher are advisory, neither ever returns a result
// that differs from the trie. Cached results are validated lazily against
// a version of the address region, mutations never scan the cache.
//
// Lookups are lock-free and never block on writers. The tries are
// persistent: a writer clones the path to the changed node and publishes
// a new root atomically, readers see either the old or the new trie.
// Writers are serialized per shard of the address space.
package tcam
