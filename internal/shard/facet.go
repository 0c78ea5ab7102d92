package shard

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// FacetValueCount is one distinct value's count within a facet result.
type FacetValueCount struct {
	Value       string
	Highlighted string
	Count       int
}

// NumericStats accompanies a numeric field's facet counts, per spec.md §4.2.
type NumericStats struct {
	Min, Max, Sum, Avg float64
	Count              int
}

// FacetResult is the per-field facet output shape from spec.md §6.
type FacetResult struct {
	FieldName string
	Counts    []FacetValueCount
	Stats     *NumericStats
}

// facetAccumEntry is the per-value bucket: the value and its count.
// Numeric stats are kept once per field, not per value.
type facetAccumEntry struct {
	value string
	count int
}

// FacetAccumulator lazily builds {value-hash -> count} over a candidate
// set as the shard iterates it, matching spec.md §3's facet-state shape.
type FacetAccumulator struct {
	fieldName string
	numeric   bool
	entries   map[uint64]*facetAccumEntry
	stats     NumericStats
	statsSeen bool
}

func NewFacetAccumulator(fieldName string, numeric bool) *FacetAccumulator {
	return &FacetAccumulator{fieldName: fieldName, numeric: numeric, entries: make(map[uint64]*facetAccumEntry)}
}

// Add records one occurrence of value (already stringified for a facet
// index, e.g. via the `_fstr_` synthetic field) for a matched document,
// and if numeric, folds it into the running min/max/sum/count.
func (a *FacetAccumulator) Add(value string, numericValue float64) {
	h := hashFacetValue(value)
	e, ok := a.entries[h]
	if !ok {
		e = &facetAccumEntry{value: value}
		a.entries[h] = e
	}
	e.count++
	if a.numeric {
		if !a.statsSeen {
			a.stats.Min, a.stats.Max = numericValue, numericValue
			a.statsSeen = true
		} else {
			if numericValue < a.stats.Min {
				a.stats.Min = numericValue
			}
			if numericValue > a.stats.Max {
				a.stats.Max = numericValue
			}
		}
		a.stats.Sum += numericValue
		a.stats.Count++
	}
}

// Result finalizes the accumulator into a FacetResult, applying an
// optional facetQuery substring filter (case-insensitive) with `<mark>`
// style highlighting, sorted by descending count then value, capped at
// maxValues.
func (a *FacetAccumulator) Result(facetQuery string, maxValues int, highlightStart, highlightEnd string) FacetResult {
	res := FacetResult{FieldName: a.fieldName}
	q := strings.ToLower(strings.TrimSpace(facetQuery))
	for _, e := range a.entries {
		if q != "" && !strings.Contains(strings.ToLower(e.value), q) {
			continue
		}
		highlighted := e.value
		if q != "" {
			highlighted = highlightSubstring(e.value, q, highlightStart, highlightEnd)
		}
		res.Counts = append(res.Counts, FacetValueCount{Value: e.value, Highlighted: highlighted, Count: e.count})
	}
	sort.Slice(res.Counts, func(i, j int) bool {
		if res.Counts[i].Count != res.Counts[j].Count {
			return res.Counts[i].Count > res.Counts[j].Count
		}
		return res.Counts[i].Value < res.Counts[j].Value
	})
	if maxValues > 0 && len(res.Counts) > maxValues {
		res.Counts = res.Counts[:maxValues]
	}
	if a.numeric && a.statsSeen {
		stats := a.stats
		stats.Avg = stats.Sum / float64(stats.Count)
		res.Stats = &stats
	}
	return res
}

func highlightSubstring(value, lowerNeedle, start, end string) string {
	lowerValue := strings.ToLower(value)
	idx := strings.Index(lowerValue, lowerNeedle)
	if idx < 0 {
		return value
	}
	return value[:idx] + start + value[idx:idx+len(lowerNeedle)] + end + value[idx+len(lowerNeedle):]
}

func hashFacetValue(v string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(v))
	return h.Sum64()
}

// StringifyForFacet renders any scalar field value as a facet string,
// backing the `_fstr_<name>` synthetic index for non-string facet fields.
func StringifyForFacet(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int32:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
