package manager

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/monishk/shardsearch/internal/analytics"
	"github.com/monishk/shardsearch/internal/collection"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// defaultSearchParams fills in every optional key of raw with its default,
// in the exact order the original C++ do_search applies them, before
// DoSearch parses and validates the result. Keys already present in raw
// are left untouched.
func defaultSearchParams(raw map[string]string) map[string]string {
	set := func(key, val string) {
		if _, ok := raw[key]; !ok {
			raw[key] = val
		}
	}

	set("num_typos", "2")
	set("prefix", "true")
	set("drop_tokens_threshold", "10")
	set("typo_tokens_threshold", "100")
	set("max_facet_values", "10")
	set("facet_query", "")
	set("limit_hits", "4294967295")
	set("snippet_threshold", "30")
	set("highlight_affix_num_tokens", "4")
	set("highlight_full_fields", "")
	set("highlight_start_tag", "<mark>")
	set("highlight_end_tag", "</mark>")

	if raw["facet_query"] != "" {
		set("per_page", "0")
	} else {
		set("per_page", "10")
	}
	set("page", "1")
	set("include_fields", "")
	set("exclude_fields", "")
	set("group_by", "")
	if raw["group_by"] != "" {
		set("group_limit", "3")
	} else {
		set("group_limit", "0")
	}
	set("pinned_hits", "")
	set("hidden_hits", "")

	return raw
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func parseWeights(s string, n int) []int {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		out = append(out, parseIntDefault(p, 1))
	}
	return out
}

// buildSearchParams converts a defaulted string-keyed parameter map into a
// typed collection.SearchParams.
func buildSearchParams(raw map[string]string) collection.SearchParams {
	return collection.SearchParams{
		Query:                   raw["q"],
		QueryBy:                 splitCSV(raw["query_by"]),
		QueryByWeights:          parseWeights(raw["query_by_weights"], 0),
		FilterBy:                raw["filter_by"],
		SortBy:                  raw["sort_by"],
		FacetBy:                 splitCSV(raw["facet_by"]),
		FacetQuery:              raw["facet_query"],
		MaxFacetValues:          parseIntDefault(raw["max_facet_values"], 10),
		NumTypos:                parseIntDefault(raw["num_typos"], 2),
		Prefix:                  raw["prefix"] != "false",
		DropTokensThreshold:     parseIntDefault(raw["drop_tokens_threshold"], 10),
		TypoTokensThreshold:     parseIntDefault(raw["typo_tokens_threshold"], 100),
		PerPage:                 parseIntDefault(raw["per_page"], 10),
		Page:                    parseIntDefault(raw["page"], 1),
		RankTokensBy:            raw["rank_tokens_by"],
		IncludeFields:           splitCSV(raw["include_fields"]),
		ExcludeFields:           splitCSV(raw["exclude_fields"]),
		PinnedHits:              splitCSV(raw["pinned_hits"]),
		HiddenHits:              splitCSV(raw["hidden_hits"]),
		HighlightStartTag:       raw["highlight_start_tag"],
		HighlightEndTag:         raw["highlight_end_tag"],
		SnippetThreshold:        parseIntDefault(raw["snippet_threshold"], 30),
		HighlightAffixNumTokens: parseIntDefault(raw["highlight_affix_num_tokens"], 4),
		LimitHits:               uint32(parseIntDefault(raw["limit_hits"], 4294967295)),
	}
}

// DoSearch resolves collName (through symlinks), default-fills raw, and
// executes the search — the manager's one query entry point (spec.md
// §4.1).
func (mgr *Manager) DoSearch(ctx context.Context, collName string, raw map[string]string) (*collection.SearchResult, error) {
	coll, err := mgr.GetCollection(collName)
	if err != nil {
		return nil, err
	}
	if _, ok := raw["query_by"]; !ok || raw["query_by"] == "" {
		return nil, apperrors.BadRequest("Parameter `query_by` is required.")
	}
	if _, ok := raw["q"]; !ok {
		return nil, apperrors.BadRequest("Parameter `q` is required.")
	}
	defaulted := defaultSearchParams(raw)
	params := buildSearchParams(defaulted)

	start := time.Now()
	var result *collection.SearchResult
	var cacheHit bool
	if mgr.cache != nil {
		result, cacheHit, err = mgr.cache.GetOrCompute(ctx, coll.Name, defaulted, func() (*collection.SearchResult, error) {
			return coll.Search(params)
		})
	} else {
		result, err = coll.Search(params)
	}
	if err == nil && mgr.analytics != nil {
		mgr.analytics.Track(analytics.SearchEvent{
			Type:       analytics.EventSearch,
			Collection: collName,
			Query:      params.Query,
			TotalHits:  result.Found,
			Returned:   len(result.Hits),
			LatencyMs:  time.Since(start).Milliseconds(),
			CacheHit:   cacheHit,
			Timestamp:  time.Now(),
		})
	}
	return result, err
}
