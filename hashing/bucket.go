// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing implements C1: deterministic key→bucket mapping. A bucket
// is an integer in [0, slots) derived from hashing an identifying key with a
// layer's salt (§4.1). The algorithm is fixed — XXH3-64 of key‖salt — so that
// independent processes, and independent implementations of this
// specification, agree on the same assignment for the same inputs (P2).
package hashing

import "github.com/zeebo/xxh3"

// DefaultSlots is the number of buckets in [0, DefaultSlots) that a key
// hashes into. Fixed at 10000 per §6's hash_slots knob unless explicitly
// rebuilt.
const DefaultSlots = 10000

// Bucket returns the deterministic bucket for key under salt, in
// [0, slots). slots is almost always DefaultSlots; it is a parameter only to
// support an explicit, coordinated rebuild (§6).
//
// Bucket is pure: identical (key, salt, slots) always produce identical
// output, in this process, across restarts, and across conforming
// implementations of the specification (P2).
func Bucket(key, salt string, slots uint32) uint32 {
	if slots == 0 {
		slots = DefaultSlots
	}
	h := hash64(key, salt)
	return uint32(h % uint64(slots))
}

// hash64 computes XXH3-64 of the concatenation key‖salt. A Hasher is used
// instead of xxh3.HashString(key+salt) to avoid the intermediate string
// allocation on the hot evaluation path.
func hash64(key, salt string) uint64 {
	h := xxh3.New()
	// Write never returns an error for xxh3.Hasher.
	_, _ = h.WriteString(key)
	_, _ = h.WriteString(salt)
	return h.Sum64()
}
