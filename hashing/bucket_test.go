// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBucketDeterministic(t *testing.T) {
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("user-%d", i)
		b1 := Bucket(key, "salt-a", DefaultSlots)
		b2 := Bucket(key, "salt-a", DefaultSlots)
		require.Equal(t, b1, b2, "Bucket must be pure for identical inputs")
		require.Less(t, b1, uint32(DefaultSlots))
	}
}

func TestBucketRange(t *testing.T) {
	for i := 0; i < 10000; i++ {
		b := Bucket(fmt.Sprintf("k-%d", i), "s", DefaultSlots)
		require.GreaterOrEqual(t, b, uint32(0))
		require.Less(t, b, uint32(DefaultSlots))
	}
}

func TestBucketSaltChangesAssignment(t *testing.T) {
	// Not every single key need differ, but across a population the salts
	// must decorrelate assignment (P4); a handful of canaries should show at
	// least one divergence.
	diffs := 0
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("canary-%d", i)
		if Bucket(key, "salt-1", DefaultSlots) != Bucket(key, "salt-2", DefaultSlots) {
			diffs++
		}
	}
	require.Greater(t, diffs, 0)
}

func TestBucketUniformity(t *testing.T) {
	const n = 2_000_000
	counts := make([]int, DefaultSlots)
	for i := 0; i < n; i++ {
		b := Bucket(fmt.Sprintf("uniform-user-%d", i), "uniformity-salt", DefaultSlots)
		counts[b]++
	}
	expected := float64(n) / float64(DefaultSlots)
	for b, c := range counts {
		dev := (float64(c) - expected) / expected
		if dev < 0 {
			dev = -dev
		}
		require.Lessf(t, dev, 0.5, "bucket %d deviates too far from uniform: count=%d expected=%.1f", b, c, expected)
	}
}

func TestBucketCustomSlots(t *testing.T) {
	b := Bucket("k", "s", 100)
	require.Less(t, b, uint32(100))
}

func TestBucketZeroSlotsDefaultsTo10000(t *testing.T) {
	require.Equal(t, Bucket("k", "s", 0), Bucket("k", "s", DefaultSlots))
}
