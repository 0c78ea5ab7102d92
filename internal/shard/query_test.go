package shard

import (
	"testing"

	"github.com/monishk/shardsearch/pkg/geo"
)

func TestTextSearchExactAndTypoMatches(t *testing.T) {
	s := New()
	s.indexToken("title", "hello world", 1, 0)
	s.indexToken("title", "hallo me", 2, 0)

	matches := s.TextSearch([]FieldWeight{{Field: "title", Weight: 1}}, []string{"hello"}, 1, false, RankFrequency)
	if _, ok := matches[1]; !ok {
		t.Error("expected exact match for seq 1")
	}
	if _, ok := matches[2]; !ok {
		t.Error("expected one-edit match (hallo~hello) for seq 2")
	}
	if matches[1].Score <= matches[2].Score {
		t.Errorf("expected exact match to outscore typo match, got %d vs %d", matches[1].Score, matches[2].Score)
	}
}

func TestTextSearchRankMaxScoreKeepsStrongestTokenOnly(t *testing.T) {
	s := New()
	s.indexToken("title", "alpha", 1, 0)
	s.indexToken("body", "alpha", 1, 0)
	s.indexToken("body", "alpha", 1, 0) // repeated insert bumps term frequency

	fields := []FieldWeight{{Field: "title", Weight: 1}, {Field: "body", Weight: 10}}
	freqMatch := s.TextSearch(fields, []string{"alpha"}, 0, false, RankFrequency)
	maxMatch := s.TextSearch(fields, []string{"alpha"}, 0, false, RankMaxScore)

	if maxMatch[1].Score >= freqMatch[1].Score {
		t.Errorf("expected max-score mode to score no higher than summed frequency mode: max=%d freq=%d",
			maxMatch[1].Score, freqMatch[1].Score)
	}
}

func TestTextSearchMatchedCountsDistinctTokens(t *testing.T) {
	s := New()
	s.indexToken("title", "quick brown fox", 1, 0)

	matches := s.TextSearch([]FieldWeight{{Field: "title", Weight: 1}}, []string{"quick", "fox", "missing"}, 0, false, RankFrequency)
	if matches[1].Matched != 2 {
		t.Errorf("expected 2 matched tokens, got %d", matches[1].Matched)
	}
}

func TestTextSearchLastTokenPrefixMatching(t *testing.T) {
	s := New()
	s.indexToken("title", "searching", 1, 0)

	matches := s.TextSearch([]FieldWeight{{Field: "title", Weight: 1}}, []string{"sear"}, 0, true, RankFrequency)
	if _, ok := matches[1]; !ok {
		t.Error("expected prefix match on the final query token")
	}
}

func TestMatchAllReturnsEveryLiveDocument(t *testing.T) {
	sc := buildSchema(t)
	s := New()
	s.Add(sc, 1, map[string]any{"rating": int32(1)})
	s.Add(sc, 2, map[string]any{"rating": int32(2)})

	matches := s.MatchAll()
	if len(matches) != 2 {
		t.Errorf("expected 2 matches, got %d", len(matches))
	}
}

func TestNumericRangeAndEquals(t *testing.T) {
	sc := buildSchema(t)
	s := New()
	s.Add(sc, 1, map[string]any{"rating": int32(5)})
	s.Add(sc, 2, map[string]any{"rating": int32(10)})

	if got := s.NumericEquals("rating", int32(5)); len(got) != 1 {
		t.Errorf("expected 1 match for rating=5, got %v", got)
	}
	if got := s.NumericRange("rating", int32(0), int32(10), true, true); len(got) != 2 {
		t.Errorf("expected 2 matches in [0,10], got %v", got)
	}
	if got := s.NumericRange("nonexistent", int32(0), int32(10), true, true); got != nil {
		t.Errorf("expected nil for unindexed field, got %v", got)
	}
}

func TestGeoRadiusAndDistance(t *testing.T) {
	sc := buildSchema(t)
	s := New()
	paris := geo.Point{Lat: 48.8566, Lng: 2.3522}
	s.Add(sc, 1, map[string]any{"rating": int32(1), "loc": paris})

	if got := s.GeoRadius("loc", paris, 1000); len(got) != 1 {
		t.Errorf("expected 1 match within 1km of itself, got %v", got)
	}
	dist, ok := s.GeoDistance("loc", 1, paris)
	if !ok || dist != 0 {
		t.Errorf("expected distance 0 from a point to itself, got %v (ok=%v)", dist, ok)
	}
	if _, ok := s.GeoDistance("loc", 999, paris); ok {
		t.Error("expected no distance for an unindexed seq_id")
	}
}

func TestStringEqualsViaFacetIndex(t *testing.T) {
	sc := buildSchema(t)
	s := New()
	s.Add(sc, 1, map[string]any{"rating": int32(1), "tags": []any{"red"}})
	s.Add(sc, 2, map[string]any{"rating": int32(1), "tags": []any{"blue"}})

	got := s.StringEquals("tags", "red")
	if len(got) != 1 {
		t.Fatalf("expected 1 match for tags=red, got %v", got)
	}
	if _, ok := got[1]; !ok {
		t.Errorf("expected seq 1 to match, got %v", got)
	}
}

func TestFacetsComputesPerFieldResults(t *testing.T) {
	sc := buildSchema(t)
	s := New()
	s.Add(sc, 1, map[string]any{"rating": int32(1), "tags": []any{"red", "blue"}})
	s.Add(sc, 2, map[string]any{"rating": int32(1), "tags": []any{"red"}})

	results := s.Facets([]FacetFieldSpec{{Field: "tags"}}, []uint32{1, 2}, "", 0, "<mark>", "</mark>")
	if len(results) != 1 {
		t.Fatalf("expected 1 facet result, got %d", len(results))
	}
	counts := map[string]int{}
	for _, c := range results[0].Counts {
		counts[c.Value] = c.Count
	}
	if counts["red"] != 2 {
		t.Errorf("expected red count 2, got %d", counts["red"])
	}
	if counts["blue"] != 1 {
		t.Errorf("expected blue count 1, got %d", counts["blue"])
	}
}
