// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package set provides a minimal generic set, used by the subscriber fan-out
// to hold each subscriber's service filter without pulling in a full
// collections dependency.
package set

import (
	"sort"

	"golang.org/x/exp/maps"
)

const minSetSize = 16

// Set is a set of comparable elements.
type Set[T comparable] map[T]struct{}

// Of returns a Set initialized with elts.
func Of[T comparable](elts ...T) Set[T] {
	s := make(Set[T], 2*len(elts))
	s.Add(elts...)
	return s
}

func (s *Set[T]) resize(size int) {
	if *s == nil {
		if size < minSetSize {
			size = minSetSize
		}
		*s = make(Set[T], size)
	}
}

// Add inserts elts into the set.
func (s *Set[T]) Add(elts ...T) {
	s.resize(2 * len(elts))
	for _, elt := range elts {
		(*s)[elt] = struct{}{}
	}
}

// Contains reports whether elt is a member of the set.
func (s Set[T]) Contains(elt T) bool {
	_, ok := s[elt]
	return ok
}

// Len returns the number of elements in the set.
func (s Set[T]) Len() int {
	return len(s)
}

// List returns the set's elements in unspecified order.
func (s Set[T]) List() []T {
	return maps.Keys(s)
}

// SortedList returns the set's elements sorted with less.
func (s Set[T]) SortedList(less func(a, b T) bool) []T {
	l := s.List()
	sort.Slice(l, func(i, j int) bool { return less(l[i], l[j]) })
	return l
}
