package shard

import (
	"strconv"
	"strings"

	"github.com/monishk/shardsearch/pkg/geo"
)

// FieldWeight pairs a searchable field with its query-time weight.
type FieldWeight struct {
	Field  string
	Weight int
}

// TextMatch is one document's aggregate text-match outcome across all
// query tokens.
type TextMatch struct {
	SeqID     uint32
	Score     int
	Matched   int // number of query tokens that matched, used by drop_tokens_threshold / typo_tokens_threshold
}

// RankMode selects how per-token weighted scores combine into a
// document's aggregate TextMatch.Score, per rank_tokens_by (spec.md §6
// supplemented feature): FREQUENCY sums every matching token's
// contribution; MaxScore keeps only the single strongest token match,
// mirroring Typesense's MAX_SCORE mode.
type RankMode int

const (
	RankFrequency RankMode = iota
	RankMaxScore
)

// TextSearch scores every candidate document against tokens across fields,
// per spec.md §4.2: the final token matches by prefix when prefix is true;
// preceding tokens match exactly or within typoBudget. Score combines term
// frequency with an edit-cost penalty and the field's weight, combined
// across tokens according to mode.
func (s *Shard) TextSearch(fields []FieldWeight, tokens []string, typoBudget int, prefix bool, mode RankMode) map[uint32]*TextMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint32]*TextMatch)
	for ti, tok := range tokens {
		isLast := ti == len(tokens)-1
		tokenMatched := make(map[uint32]struct{})
		for _, fw := range fields {
			trie, ok := s.tries[fw.Field]
			if !ok {
				continue
			}
			candidates := trie.Lookup(tok, typoBudget, isLast && prefix)
			for _, c := range candidates {
				costFactor := 4 - c.Cost
				if costFactor < 1 {
					costFactor = 1
				}
				for _, p := range c.Postings {
					tm, ok := out[p.SeqID]
					if !ok {
						tm = &TextMatch{SeqID: p.SeqID}
						out[p.SeqID] = tm
					}
					contribution := p.TermFrequency * costFactor * maxInt(fw.Weight, 1)
					if mode == RankMaxScore {
						if contribution > tm.Score {
							tm.Score = contribution
						}
					} else {
						tm.Score += contribution
					}
					tokenMatched[p.SeqID] = struct{}{}
				}
			}
		}
		for id := range tokenMatched {
			out[id].Matched++
		}
	}
	return out
}

// MatchAll returns a TextMatch for every live document with a uniform
// score, used for the q="*" match-all query.
func (s *Shard) MatchAll() map[uint32]*TextMatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]*TextMatch, len(s.payloads))
	for id := range s.payloads {
		out[id] = &TextMatch{SeqID: id, Score: 0, Matched: 1}
	}
	return out
}

// NumericRange resolves `field op value` / `field: lo..hi` numeric filter
// clauses to a candidate seq_id set.
func (s *Shard) NumericRange(field string, lo, hi any, includeLo, includeHi bool) map[uint32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.numerics[field]
	if !ok {
		return nil
	}
	return idx.RangeQueryAny(lo, hi, includeLo, includeHi)
}

// NumericEquals resolves `field:value` / `field:v1,v2` equality clauses.
func (s *Shard) NumericEquals(field string, value any) map[uint32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.numerics[field]
	if !ok {
		return nil
	}
	return idx.EqualsAny(value)
}

// GeoRadius resolves a `field:(lat,lng,radius)` filter clause.
func (s *Shard) GeoRadius(field string, center geo.Point, radiusMeters float64) map[uint32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.geos[field]
	if !ok {
		return nil
	}
	return idx.Radius(center, radiusMeters)
}

// StringEquals resolves `field:value` clauses on a (non-tokenized, exact)
// string comparison basis by scanning the field's facet index when
// present, falling back to the trie's exact-token postings otherwise.
func (s *Shard) StringEquals(field string, value string) map[uint32]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint32]struct{})
	if facetVals, ok := s.facets[field]; ok {
		for id, v := range facetVals {
			if v == value {
				out[id] = struct{}{}
			}
		}
		return out
	}
	trie, ok := s.tries[field]
	if !ok {
		return out
	}
	for _, tok := range Tokenize(value) {
		for _, c := range trie.Lookup(tok, 0, false) {
			if c.Cost != 0 {
				continue
			}
			for _, p := range c.Postings {
				out[p.SeqID] = struct{}{}
			}
		}
	}
	return out
}

// GeoDistance returns the haversine distance in meters from center to
// seqID's stored point on field, if indexed.
func (s *Shard) GeoDistance(field string, seqID uint32, center geo.Point) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.geos[field]
	if !ok {
		return 0, false
	}
	p, ok := idx.Point(seqID)
	if !ok {
		return 0, false
	}
	return geo.HaversineMeters(center, p), true
}

// GeoSquaredDistance returns the squared planar distance used by geo-sort
// comparisons (spec.md §4.2: "geo-sort using squared Euclidean distance").
func (s *Shard) GeoSquaredDistance(field string, seqID uint32, ref geo.Point) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.geos[field]
	if !ok {
		return 0, false
	}
	p, ok := idx.Point(seqID)
	if !ok {
		return 0, false
	}
	return geo.SquaredEuclidean(p, ref), true
}

// Facets computes a FacetResult for each requested field over candidates.
func (s *Shard) Facets(fields []FacetFieldSpec, candidates []uint32, facetQuery string, maxValues int, highlightStart, highlightEnd string) []FacetResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]FacetResult, 0, len(fields))
	for _, spec := range fields {
		idxName := spec.Field
		if spec.Numeric {
			idxName = "_fstr_" + spec.Field
		}
		facetVals, ok := s.facets[idxName]
		if !ok {
			facetVals = s.facets[spec.Field]
		}
		acc := NewFacetAccumulator(spec.Field, spec.Numeric)
		for _, id := range candidates {
			raw, ok := facetVals[id]
			if !ok {
				continue
			}
			for _, v := range strings.Split(raw, ",") {
				numVal := 0.0
				if spec.Numeric {
					numVal, _ = strconv.ParseFloat(v, 64)
				}
				acc.Add(v, numVal)
			}
		}
		results = append(results, acc.Result(facetQuery, maxValues, highlightStart, highlightEnd))
	}
	return results
}

// FacetFieldSpec identifies a facet-by field and whether it is numeric
// (backed by the `_fstr_` synthetic index).
type FacetFieldSpec struct {
	Field   string
	Numeric bool
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
