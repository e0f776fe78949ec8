// Package types holds small generic containers shared by the hlo packages.
// See sub-packages shapes, literal and status for the core value types.
package types

import (
	"cmp"
	"maps"
	"slices"
)

// Set of keys of type T, used for instance to group opcodes that share a constraint.
type Set[T comparable] map[T]struct{}

// SetWith creates a Set[T] with the given elements inserted.
func SetWith[T comparable](elements ...T) Set[T] {
	s := make(Set[T], len(elements))
	s.Insert(elements...)
	return s
}

// Has returns true if Set s has the given key.
func (s Set[T]) Has(key T) bool {
	_, found := s[key]
	return found
}

// Insert keys into the set.
func (s Set[T]) Insert(keys ...T) {
	for _, key := range keys {
		s[key] = struct{}{}
	}
}

// Union returns a new set with the keys of all the given sets.
func Union[T comparable](sets ...Set[T]) Set[T] {
	u := make(Set[T])
	for _, s := range sets {
		for key := range s {
			u[key] = struct{}{}
		}
	}
	return u
}

// Sorted returns the keys of the set in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
