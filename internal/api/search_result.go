package api

import "github.com/monishk/shardsearch/internal/collection"

// toSearchResultJSON reshapes a collection.SearchResult into the wire
// shape spec.md §6 describes, since the internal structs carry no json
// tags (the query cache marshals them as-is, under their Go field names).
func toSearchResultJSON(r *collection.SearchResult) map[string]any {
	hits := make([]map[string]any, 0, len(r.Hits))
	for _, h := range r.Hits {
		highlights := make([]map[string]any, 0, len(h.Highlights))
		for _, hl := range h.Highlights {
			highlights = append(highlights, map[string]any{
				"field":          hl.Field,
				"snippet":        hl.Snippet,
				"value":          hl.Value,
				"matched_tokens": hl.MatchedTokens,
			})
		}
		hit := map[string]any{
			"id":         h.ID,
			"seq_id":     h.SeqID,
			"document":   h.Document,
			"text_match": h.TextMatch,
			"highlights": highlights,
		}
		if h.GeoDistanceMeters != nil {
			hit["geo_distance_meters"] = *h.GeoDistanceMeters
		}
		hits = append(hits, hit)
	}

	facets := make([]map[string]any, 0, len(r.FacetCounts))
	for _, f := range r.FacetCounts {
		counts := make([]map[string]any, 0, len(f.Counts))
		for _, c := range f.Counts {
			counts = append(counts, map[string]any{
				"value":       c.Value,
				"highlighted": c.Highlighted,
				"count":       c.Count,
			})
		}
		entry := map[string]any{
			"field_name": f.FieldName,
			"counts":     counts,
		}
		if f.Stats != nil {
			entry["stats"] = map[string]any{
				"min": f.Stats.Min, "max": f.Stats.Max,
				"sum": f.Stats.Sum, "avg": f.Stats.Avg, "count": f.Stats.Count,
			}
		}
		facets = append(facets, entry)
	}

	return map[string]any{
		"found":         r.Found,
		"out_of":        r.OutOf,
		"page":          r.Page,
		"hits":          hits,
		"facet_counts":  facets,
		"search_time_ms": r.SearchTimeMs,
	}
}
