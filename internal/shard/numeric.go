package shard

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// NumericIndex is an ordered value -> seq_id set index shared by int32,
// int64, and float64 fields. It is generic over constraints.Ordered so an
// int64 value is compared natively rather than round-tripped through
// float64, which would lose precision on the large-int64 boundary values
// spec.md §8 tests against.
type NumericIndex[T constraints.Ordered] struct {
	values  []T
	postings map[T]map[uint32]struct{}
}

func NewNumericIndex[T constraints.Ordered]() *NumericIndex[T] {
	return &NumericIndex[T]{postings: make(map[T]map[uint32]struct{})}
}

// Insert records that seqID has value v.
func (n *NumericIndex[T]) Insert(v T, seqID uint32) {
	set, ok := n.postings[v]
	if !ok {
		set = make(map[uint32]struct{})
		n.postings[v] = set
		n.values = insertSorted(n.values, v)
	}
	set[seqID] = struct{}{}
}

// Erase removes seqID from value v's posting set.
func (n *NumericIndex[T]) Erase(v T, seqID uint32) {
	set, ok := n.postings[v]
	if !ok {
		return
	}
	delete(set, seqID)
	if len(set) == 0 {
		delete(n.postings, v)
		n.values = removeSorted(n.values, v)
	}
}

// RangeQuery returns the union of seq_ids whose value satisfies lo <= v <=
// hi (either bound may be its type's zero-value sentinel via
// includeLo/includeHi to model open-ended comparisons like `>` or `<=`).
func (n *NumericIndex[T]) RangeQuery(lo, hi T, includeLo, includeHi bool) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	start := sort.Search(len(n.values), func(i int) bool {
		if includeLo {
			return n.values[i] >= lo
		}
		return n.values[i] > lo
	})
	for i := start; i < len(n.values); i++ {
		v := n.values[i]
		if includeHi {
			if v > hi {
				break
			}
		} else if v >= hi {
			break
		}
		for id := range n.postings[v] {
			out[id] = struct{}{}
		}
	}
	return out
}

// Equals returns the seq_ids exactly matching v.
func (n *NumericIndex[T]) Equals(v T) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for id := range n.postings[v] {
		out[id] = struct{}{}
	}
	return out
}

func insertSorted[T constraints.Ordered](vals []T, v T) []T {
	i := sort.Search(len(vals), func(i int) bool { return vals[i] >= v })
	if i < len(vals) && vals[i] == v {
		return vals
	}
	vals = append(vals, v)
	copy(vals[i+1:], vals[i:])
	vals[i] = v
	return vals
}

// AnyNumericIndex erases the concrete numeric type parameter so a shard can
// hold a single heterogeneous map of int32/int64/float64 indexes keyed by
// field name.
type AnyNumericIndex interface {
	InsertAny(v any, seqID uint32)
	EraseAny(v any, seqID uint32)
	RangeQueryAny(lo, hi any, includeLo, includeHi bool) map[uint32]struct{}
	EqualsAny(v any) map[uint32]struct{}
}

func (n *NumericIndex[T]) InsertAny(v any, seqID uint32) { n.Insert(v.(T), seqID) }
func (n *NumericIndex[T]) EraseAny(v any, seqID uint32)  { n.Erase(v.(T), seqID) }
func (n *NumericIndex[T]) RangeQueryAny(lo, hi any, includeLo, includeHi bool) map[uint32]struct{} {
	return n.RangeQuery(lo.(T), hi.(T), includeLo, includeHi)
}
func (n *NumericIndex[T]) EqualsAny(v any) map[uint32]struct{} { return n.Equals(v.(T)) }

func removeSorted[T constraints.Ordered](vals []T, v T) []T {
	i := sort.Search(len(vals), func(i int) bool { return vals[i] >= v })
	if i < len(vals) && vals[i] == v {
		vals = append(vals[:i], vals[i+1:]...)
	}
	return vals
}
