package collection

import (
	"context"
	"encoding/json"

	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/internal/shard"
	"github.com/monishk/shardsearch/pkg/geo"
)

func geoPoint(lat, lng float64) geo.Point {
	return geo.Point{Lat: lat, Lng: lng}
}

// applyOverridesAndHidden re-orders merged to pin/hide documents per any
// override matching params.Query, then removes params.HiddenHits, then
// moves params.PinnedHits to the front in the order given.
func (c *Collection) applyOverridesAndHidden(merged []hit, params SearchParams) []hit {
	hidden := toSet(params.HiddenHits)
	for _, o := range c.matchingOverrides(params.Query) {
		for _, id := range o.ExcludeIDs {
			hidden[id] = struct{}{}
		}
	}

	c.mu.RLock()
	seqToID := make(map[uint32]string, len(c.idIndex))
	for id, seq := range c.idIndex {
		seqToID[seq] = id
	}
	c.mu.RUnlock()

	filtered := merged[:0:0]
	for _, h := range merged {
		if id, ok := seqToID[h.SeqID]; ok {
			if _, excl := hidden[id]; excl {
				continue
			}
		}
		filtered = append(filtered, h)
	}

	pinned := params.PinnedHits
	for _, o := range c.matchingOverrides(params.Query) {
		pinned = append(pinned, o.IncludeIDs...)
	}
	if len(pinned) == 0 {
		return filtered
	}

	byID := make(map[string]hit)
	rest := filtered[:0:0]
	seen := make(map[string]bool)
	for _, h := range filtered {
		if id, ok := seqToID[h.SeqID]; ok {
			byID[id] = h
		}
	}
	var front []hit
	for _, id := range pinned {
		if seen[id] {
			continue
		}
		seen[id] = true
		if h, ok := byID[id]; ok {
			front = append(front, h)
		}
	}
	for _, h := range filtered {
		if id, ok := seqToID[h.SeqID]; ok && seen[id] {
			continue
		}
		rest = append(rest, h)
	}
	return append(front, rest...)
}

func toSet(vals []string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

func (c *Collection) facetFieldSpecs(names []string) []shard.FacetFieldSpec {
	specs := make([]shard.FacetFieldSpec, 0, len(names))
	for _, name := range names {
		f, ok := c.Schema.Field(name)
		if !ok || !f.Facet {
			continue
		}
		specs = append(specs, shard.FacetFieldSpec{Field: name, Numeric: f.Type != schema.String})
	}
	return specs
}

func (c *Collection) computeFacets(merged []hit, specs []shard.FacetFieldSpec, params SearchParams) []shard.FacetResult {
	byShard := make(map[int][]uint32)
	for _, h := range merged {
		byShard[h.ShardIdx] = append(byShard[h.ShardIdx], h.SeqID)
	}
	perFieldTotals := make(map[string]*shard.FacetAccumulator)
	var order []string
	for shardIdx, ids := range byShard {
		res := c.shards[shardIdx].Facets(specs, ids, params.FacetQuery, 0, params.HighlightStartTag, params.HighlightEndTag)
		for i, spec := range specs {
			acc, ok := perFieldTotals[spec.Field]
			if !ok {
				acc = shard.NewFacetAccumulator(spec.Field, spec.Numeric)
				perFieldTotals[spec.Field] = acc
				order = append(order, spec.Field)
			}
			for _, fv := range res[i].Counts {
				for i := 0; i < fv.Count; i++ {
					acc.Add(fv.Value, 0)
				}
			}
		}
	}
	out := make([]shard.FacetResult, 0, len(order))
	for _, field := range order {
		out = append(out, perFieldTotals[field].Result(params.FacetQuery, params.MaxFacetValues, params.HighlightStartTag, params.HighlightEndTag))
	}
	return out
}

func (c *Collection) buildHit(h hit, tokens []string, params SearchParams) (Hit, error) {
	c.mu.RLock()
	var id string
	for docID, seq := range c.idIndex {
		if seq == h.SeqID {
			id = docID
			break
		}
	}
	c.mu.RUnlock()

	body, err := c.Get(context.Background(), id)
	if err != nil {
		return Hit{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Hit{}, err
	}

	filterFields(doc, params.IncludeFields, params.ExcludeFields)

	var highlights []Highlight
	for _, fw := range params.QueryBy {
		v, ok := doc[fw]
		if !ok {
			continue
		}
		text, ok := v.(string)
		if !ok {
			continue
		}
		snippet, matched := highlightText(text, tokens, params.HighlightStartTag, params.HighlightEndTag, params.HighlightAffixNumTokens)
		if len(matched) == 0 {
			continue
		}
		highlights = append(highlights, Highlight{Field: fw, Snippet: snippet, MatchedTokens: matched})
	}

	return Hit{
		ID:         id,
		SeqID:      h.SeqID,
		Document:   doc,
		TextMatch:  h.TextMatch,
		Highlights: highlights,
	}, nil
}

func filterFields(doc map[string]any, include, exclude []string) {
	if len(include) > 0 {
		set := toSet(include)
		for k := range doc {
			if _, ok := set[k]; !ok && k != "id" {
				delete(doc, k)
			}
		}
	}
	for _, f := range exclude {
		delete(doc, f)
	}
}

