package collection

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/monishk/shardsearch/internal/planner"
	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/internal/shard"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// SearchParams is the fully defaulted, still-untyped search request —
// defaulting happens in internal/manager before Search validates and
// executes it, per spec.md §6.
type SearchParams struct {
	Query                   string
	QueryBy                 []string
	QueryByWeights          []int
	FilterBy                string
	SortBy                  string
	FacetBy                 []string
	FacetQuery              string
	MaxFacetValues          int
	NumTypos                int
	Prefix                  bool
	DropTokensThreshold     int
	TypoTokensThreshold     int
	PerPage                 int
	Page                    int
	RankTokensBy            string
	IncludeFields           []string
	ExcludeFields           []string
	PinnedHits              []string
	HiddenHits              []string
	HighlightStartTag       string
	HighlightEndTag         string
	SnippetThreshold        int
	HighlightAffixNumTokens int
	LimitHits               uint32
}

// Hit is one ranked result.
type Hit struct {
	ID                string
	SeqID             uint32
	Document          map[string]any
	TextMatch         int
	Highlights        []Highlight
	GeoDistanceMeters *float64
}

// Highlight is one field's snippet/highlight, per spec.md §6.
type Highlight struct {
	Field         string
	Snippet       string
	Value         string
	MatchedTokens []string
}

// SearchResult is the JSON-shaped output from spec.md §6.
type SearchResult struct {
	Found        int
	OutOf        int
	Page         int
	Hits         []Hit
	FacetCounts  []shard.FacetResult
	SearchTimeMs int64
}

// Search executes params against the collection: parallel per-shard
// candidate generation, heap merge by sort tuple, facet aggregation, and
// highlighting on the returned page.
func (c *Collection) Search(params SearchParams) (*SearchResult, error) {
	searchStart := time.Now()
	plan, err := planner.Build(c.Schema, params.FilterBy, params.SortBy)
	if err != nil {
		return nil, err
	}

	fields, err := c.resolveQueryFields(params)
	if err != nil {
		return nil, err
	}

	matchAll := strings.TrimSpace(params.Query) == "*" || strings.TrimSpace(params.Query) == ""
	tokens := c.expandTokens(shard.Tokenize(params.Query))

	perShard := make([][]hit, len(c.shards))
	var wg sync.WaitGroup
	for i, sh := range c.shards {
		wg.Add(1)
		go func(i int, sh *shard.Shard) {
			defer wg.Done()
			perShard[i] = c.searchShard(sh, i, plan, fields, tokens, matchAll, params)
		}(i, sh)
	}
	wg.Wait()

	for i := range perShard {
		list := perShard[i]
		sort.SliceStable(list, func(a, b int) bool { return less(list[a], list[b], plan.Sorts) })
		perShard[i] = list
	}
	merged := mergeSorted(perShard, plan.Sorts)
	merged = c.applyOverridesAndHidden(merged, params)

	outOf := c.DocCount()
	found := len(merged)

	if params.LimitHits > 0 && uint32(found) > params.LimitHits {
		merged = merged[:params.LimitHits]
		found = len(merged)
	}

	facetFields := c.facetFieldSpecs(params.FacetBy)
	var facetResults []shard.FacetResult
	if len(facetFields) > 0 {
		facetResults = c.computeFacets(merged, facetFields, params)
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	perPage := params.PerPage
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(merged) {
		start = len(merged)
	}
	if end > len(merged) {
		end = len(merged)
	}
	pageHits := merged[start:end]

	hits := make([]Hit, 0, len(pageHits))
	for _, h := range pageHits {
		hit, err := c.buildHit(h, tokens, params)
		if err != nil {
			continue
		}
		hits = append(hits, hit)
	}

	return &SearchResult{
		Found:        found,
		OutOf:        outOf,
		Page:         page,
		Hits:         hits,
		FacetCounts:  facetResults,
		SearchTimeMs: time.Since(searchStart).Milliseconds(),
	}, nil
}

func (c *Collection) resolveQueryFields(params SearchParams) ([]shard.FieldWeight, error) {
	fields := make([]shard.FieldWeight, 0, len(params.QueryBy))
	for i, name := range params.QueryBy {
		f, ok := c.Schema.Field(name)
		if !ok || f.Type != schema.String {
			return nil, apperrors.BadRequest("Could not find a string field named `%s` to search on.", name)
		}
		weight := 1
		if i < len(params.QueryByWeights) {
			weight = params.QueryByWeights[i]
		}
		fields = append(fields, shard.FieldWeight{Field: name, Weight: weight})
	}
	return fields, nil
}

// searchShard runs the filter + text-match candidate generation for one
// shard, returning its locally-scored, unsorted hit list.
func (c *Collection) searchShard(sh *shard.Shard, shardIdx int, plan *planner.Plan, fields []shard.FieldWeight, tokens []string, matchAll bool, params SearchParams) []hit {
	var filtered map[uint32]struct{}
	if len(plan.Filters) > 0 {
		filtered = c.evalFilters(sh, plan.Filters)
		if filtered == nil {
			return nil
		}
	}

	mode := rankMode(params.RankTokensBy, c.Schema.DefaultSortingField)

	var matches map[uint32]*shard.TextMatch
	if matchAll {
		matches = sh.MatchAll()
	} else {
		matches = escalatingTextSearch(sh, fields, tokens, params, mode)
	}

	out := make([]hit, 0, len(matches))
	for seqID, tm := range matches {
		if filtered != nil {
			if _, ok := filtered[seqID]; !ok {
				continue
			}
		}
		h := hit{SeqID: seqID, ShardIdx: shardIdx, TextMatch: tm.Score}
		h.SortVals = make([]sortValue, len(plan.Sorts))
		for i, clause := range plan.Sorts {
			h.SortVals[i] = resolveSortValue(sh, clause, seqID)
		}
		out = append(out, h)
	}
	return out
}

// escalatingTextSearch implements spec.md §4.2's typo/drop-tokens
// fallback: start at zero typos, escalate the typo budget up to NumTypos
// if fewer than TypoTokensThreshold candidates were found, then, while
// that still matches nothing (and DropTokensThreshold is above zero), drop
// trailing tokens one at a time.
func escalatingTextSearch(sh *shard.Shard, fields []shard.FieldWeight, tokens []string, params SearchParams, mode shard.RankMode) map[uint32]*shard.TextMatch {
	if len(tokens) == 0 {
		return sh.MatchAll()
	}
	active := tokens
	for {
		matches := sh.TextSearch(fields, active, 0, params.Prefix, mode)
		if len(matches) >= params.TypoTokensThreshold || params.NumTypos == 0 {
			if len(matches) > 0 || params.NumTypos == 0 {
				return refineWithTypos(sh, fields, active, matches, params, mode)
			}
		}
		matches = refineWithTypos(sh, fields, active, matches, params, mode)
		if len(matches) > 0 || len(active) <= 1 {
			return matches
		}
		if len(matches) < params.DropTokensThreshold {
			active = active[:len(active)-1]
			continue
		}
		return matches
	}
}

func refineWithTypos(sh *shard.Shard, fields []shard.FieldWeight, tokens []string, zeroTypoMatches map[uint32]*shard.TextMatch, params SearchParams, mode shard.RankMode) map[uint32]*shard.TextMatch {
	if len(zeroTypoMatches) >= params.TypoTokensThreshold || params.NumTypos == 0 {
		return zeroTypoMatches
	}
	return sh.TextSearch(fields, tokens, params.NumTypos, params.Prefix, mode)
}

// rankMode maps rank_tokens_by to a shard.RankMode: DEFAULT_SORTING_FIELD
// (or unset) selects MAX_SCORE, matching the original C++'s mapping; any
// other value is FREQUENCY.
func rankMode(rankTokensBy, defaultSortingField string) shard.RankMode {
	if rankTokensBy == "" || rankTokensBy == "DEFAULT_SORTING_FIELD" || rankTokensBy == defaultSortingField {
		return shard.RankMaxScore
	}
	return shard.RankFrequency
}

// evalFilters resolves plan's filter clauses against sh, intersecting
// across clauses (spec.md §6: `&&`-joined clauses are conjunctive). It
// never returns nil: an empty set means no document in sh passes every
// clause.
func (c *Collection) evalFilters(sh *shard.Shard, clauses []planner.FilterClause) map[uint32]struct{} {
	var result map[uint32]struct{}
	for i, cl := range clauses {
		set := c.evalFilterClause(sh, cl)
		if i == 0 {
			result = set
			continue
		}
		result = intersect(result, set)
		if len(result) == 0 {
			return result
		}
	}
	if result == nil {
		result = make(map[uint32]struct{})
	}
	return result
}

func (c *Collection) evalFilterClause(sh *shard.Shard, cl planner.FilterClause) map[uint32]struct{} {
	f, ok := c.Schema.Field(cl.Field)
	if !ok {
		return nil
	}
	var set map[uint32]struct{}
	switch cl.Kind {
	case planner.Geo:
		radius := cl.GeoRadius
		if cl.GeoUnit == "mi" {
			radius *= 1609.34
		} else {
			radius *= 1000
		}
		set = sh.GeoRadius(cl.Field, geoPoint(cl.GeoLat, cl.GeoLng), radius)
	case planner.Range:
		lo, hi := parseNumericBound(f, cl.RangeLo), parseNumericBound(f, cl.RangeHi)
		set = sh.NumericRange(cl.Field, lo, hi, true, true)
	case planner.NumericOp:
		set = evalNumericOp(sh, f, cl)
	case planner.ValueList:
		if f.Type == schema.String {
			set = make(map[uint32]struct{})
			for _, v := range cl.Values {
				for id := range sh.StringEquals(cl.Field, v) {
					set[id] = struct{}{}
				}
			}
		} else {
			set = make(map[uint32]struct{})
			for _, v := range cl.Values {
				val := parseNumericBound(f, v)
				for id := range sh.NumericEquals(cl.Field, val) {
					set[id] = struct{}{}
				}
			}
		}
	}
	if cl.Negate {
		set = complement(sh, set)
	}
	return set
}

func evalNumericOp(sh *shard.Shard, f schema.Field, cl planner.FilterClause) map[uint32]struct{} {
	v := parseNumericBound(f, cl.OpValue)
	switch cl.Op {
	case "=":
		return sh.NumericEquals(cl.Field, v)
	case ">":
		return sh.NumericRange(cl.Field, v, maxBound(f), false, true)
	case ">=":
		return sh.NumericRange(cl.Field, v, maxBound(f), true, true)
	case "<":
		return sh.NumericRange(cl.Field, minBound(f), v, true, false)
	case "<=":
		return sh.NumericRange(cl.Field, minBound(f), v, true, true)
	}
	return nil
}

func complement(sh *shard.Shard, exclude map[uint32]struct{}) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, id := range sh.AllSeqIDs() {
		if _, excluded := exclude[id]; !excluded {
			out[id] = struct{}{}
		}
	}
	return out
}

func intersect(a, b map[uint32]struct{}) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func parseNumericBound(f schema.Field, s string) any {
	s = strings.TrimSpace(s)
	switch f.Type {
	case schema.Int32:
		v, _ := strconv.ParseInt(s, 10, 32)
		return int32(v)
	case schema.Int64:
		v, _ := strconv.ParseInt(s, 10, 64)
		return v
	default:
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
}

func maxBound(f schema.Field) any {
	switch f.Type {
	case schema.Int32:
		return int32(2147483647)
	case schema.Int64:
		return int64(9223372036854775807)
	default:
		return float64(1.7976931348623157e+308)
	}
}

func minBound(f schema.Field) any {
	switch f.Type {
	case schema.Int32:
		return int32(-2147483648)
	case schema.Int64:
		return int64(-9223372036854775808)
	default:
		return float64(-1.7976931348623157e+308)
	}
}
