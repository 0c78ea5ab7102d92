package collection

import (
	"container/heap"

	"github.com/monishk/shardsearch/internal/planner"
	"github.com/monishk/shardsearch/internal/shard"
	"github.com/monishk/shardsearch/pkg/geo"
)

// hit is one candidate document carried through ranking: its shard-local
// sort-tuple values, text-match score, and seq_id tie-break.
type hit struct {
	SeqID     uint32
	ShardIdx  int
	SortVals  []sortValue
	TextMatch int
	GeoDist   *float64 // meters; no code in this package sets it, so it stays nil
}

// sortValue is one resolved sort-clause value for a single hit: either an
// int64 payload value (compared natively, since int64 magnitudes this large
// lose precision once collapsed into float64 — spec.md §8's int64 sort
// scenario depends on this), a float64 payload value or geo
// squared-distance, or a flag for "missing" (optional field absent), which
// spec.md §4.2 says sorts last in ASC and first in DESC.
type sortValue struct {
	Missing bool
	IsInt   bool
	Int     int64
	Num     float64
}

// resolveSortValue extracts clause's value for seqID from sh's score
// payload, per the ranking rule in spec.md §4.2.
func resolveSortValue(sh *shard.Shard, clause planner.SortClause, seqID uint32) sortValue {
	if clause.GeoRef != nil {
		d, ok := sh.GeoSquaredDistance(clause.Field, seqID, *clause.GeoRef)
		if !ok {
			return sortValue{Missing: true}
		}
		return sortValue{Num: d}
	}
	payload, ok := sh.Payload(seqID)
	if !ok {
		return sortValue{Missing: true}
	}
	v, ok := payload.SortValues[clause.Field]
	if !ok {
		return sortValue{Missing: true}
	}
	switch t := v.(type) {
	case int32:
		return sortValue{IsInt: true, Int: int64(t)}
	case int64:
		return sortValue{IsInt: true, Int: t}
	case float64:
		return sortValue{Num: t}
	case geo.Point:
		return sortValue{Missing: true}
	default:
		return sortValue{Missing: true}
	}
}

// compareSortValues returns -1/0/1 for a<b/a==b/a>b, comparing two int64
// values natively rather than rounding both through float64.
func compareSortValues(a, b sortValue) int {
	if a.IsInt && b.IsInt {
		switch {
		case a.Int < b.Int:
			return -1
		case a.Int > b.Int:
			return 1
		default:
			return 0
		}
	}
	af, bf := a.Num, b.Num
	if a.IsInt {
		af = float64(a.Int)
	}
	if b.IsInt {
		bf = float64(b.Int)
	}
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

// less implements the composite ranking order from spec.md §4.2: sort
// clauses in order, then text-match score descending, then seq_id
// ascending.
func less(a, b hit, sorts []planner.SortClause) bool {
	for i, clause := range sorts {
		av, bv := a.SortVals[i], b.SortVals[i]
		if av.Missing != bv.Missing {
			// missing sorts last in ASC, first in DESC
			if clause.Descending {
				return av.Missing
			}
			return bv.Missing
		}
		if cmp := compareSortValues(av, bv); !av.Missing && cmp != 0 {
			if clause.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
	}
	if a.TextMatch != b.TextMatch {
		return a.TextMatch > b.TextMatch
	}
	return a.SeqID < b.SeqID
}

// mergeSorted performs a container/heap k-way merge over already
// shard-sorted hit lists, per spec.md §2's "merge by a heap keyed on the
// composite sort tuple", and returns the fully globally sorted list.
func mergeSorted(lists [][]hit, sorts []planner.SortClause) []hit {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]hit, 0, total)

	h := &cursorHeap{lists: lists, sorts: sorts}
	for i, l := range lists {
		if len(l) > 0 {
			heap.Push(h, mergeCursor{list: i, pos: 0})
		}
	}
	for h.Len() > 0 {
		c := heap.Pop(h).(mergeCursor)
		out = append(out, lists[c.list][c.pos])
		if c.pos+1 < len(lists[c.list]) {
			heap.Push(h, mergeCursor{list: c.list, pos: c.pos + 1})
		}
	}
	return out
}

type mergeCursor struct {
	list int
	pos  int
}

type cursorHeap struct {
	items []mergeCursor
	lists [][]hit
	sorts []planner.SortClause
}

func (h *cursorHeap) Len() int { return len(h.items) }
func (h *cursorHeap) Less(i, j int) bool {
	a := h.lists[h.items[i].list][h.items[i].pos]
	b := h.lists[h.items[j].list][h.items[j].pos]
	return less(a, b, h.sorts)
}
func (h *cursorHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *cursorHeap) Push(x any)    { h.items = append(h.items, x.(mergeCursor)) }
func (h *cursorHeap) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}
