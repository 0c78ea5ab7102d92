package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/internal/store"
	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// decodeDoc marshals v to JSON then re-decodes it with json.Number
// preserved, matching the shape Add/Restore expect from schema.Decode.
func decodeDoc(t *testing.T, v map[string]any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling doc fixture: %v", err)
	}
	raw, err := schema.Decode(b)
	if err != nil {
		t.Fatalf("decoding doc fixture: %v", err)
	}
	return raw
}

func newTestCollection(t *testing.T, fields []schema.Field, defaultSortingField string, numShards int) *Collection {
	t.Helper()
	sc, err := schema.New(fields, defaultSortingField, false)
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	return New(1, "test", 0, numShards, sc, store.NewMemoryKV(), nil)
}

func hitIDs(res *SearchResult) []string {
	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids
}

func assertIDs(t *testing.T, got []string, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d hits %v, got %d hits %v", len(want), want, len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("hit %d: expected id %q, got %q (full got=%v want=%v)", i, want[i], got[i], got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Seed scenario 2: int64 default sort (spec.md §8 scenario 2).
// ---------------------------------------------------------------------------

func TestInt64DefaultSortAscendingAndDescending(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "title", Type: schema.String},
		{Name: "starring", Type: schema.String},
		{Name: "points", Type: schema.Int64},
		{Name: "cast", Type: schema.String, Array: true},
	}, "points", 4)

	points := []int64{343234324234233234, 343234324234233232, 343234324234233235, 343234324234233231}
	for _, p := range points {
		_, _, err := coll.Add(context.Background(), decodeDoc(t, map[string]any{
			"title": "foo", "starring": "bar", "points": p, "cast": []string{"baz"},
		}))
		if err != nil {
			t.Fatalf("adding doc points=%d: %v", p, err)
		}
	}

	ascRes, err := coll.Search(SearchParams{Query: "foo", QueryBy: []string{"title"}, SortBy: "points:ASC", PerPage: 10, Page: 1})
	if err != nil {
		t.Fatalf("search ASC: %v", err)
	}
	assertIDs(t, hitIDs(ascRes), []string{"3", "1", "0", "2"})

	descRes, err := coll.Search(SearchParams{Query: "foo", QueryBy: []string{"title"}, SortBy: "points:desc", PerPage: 10, Page: 1})
	if err != nil {
		t.Fatalf("search DESC: %v", err)
	}
	assertIDs(t, hitIDs(descRes), []string{"2", "0", "1", "3"})
}

// ---------------------------------------------------------------------------
// Seed scenario 4: three-sort-clause limit (spec.md §8 scenario 4).
// ---------------------------------------------------------------------------

func TestThreeSortClauseLimitReturnsBadRequest(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "title", Type: schema.String},
		{Name: "points", Type: schema.Int32},
		{Name: "average", Type: schema.Int32},
		{Name: "min", Type: schema.Int32},
		{Name: "max", Type: schema.Int32},
	}, "points", 4)

	_, _, err := coll.Add(context.Background(), decodeDoc(t, map[string]any{
		"id": "100", "title": "The quick brown fox", "points": 25, "average": 25, "min": 25, "max": 25,
	}))
	if err != nil {
		t.Fatalf("adding doc: %v", err)
	}

	_, err = coll.Search(SearchParams{
		Query: "the", QueryBy: []string{"title"},
		SortBy: "points:DESC,average:DESC,max:DESC,min:DESC", PerPage: 10, Page: 1,
	})
	if err == nil {
		t.Fatal("expected error for four sort clauses")
	}
	if err.Error() != "Only upto 3 sort_by fields can be specified." {
		t.Errorf("unexpected error message: %q", err.Error())
	}
	if apperrors.HTTPStatusCode(err) != 400 {
		t.Errorf("expected BadRequest status, got %d", apperrors.HTTPStatusCode(err))
	}
}

// ---------------------------------------------------------------------------
// Seed scenario 5: negative int64 filter (spec.md §8 scenario 5).
// ---------------------------------------------------------------------------

func TestNegativeInt64FilterExcludesDocument(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "title", Type: schema.String},
		{Name: "points", Type: schema.Int64},
	}, "points", 4)

	_, _, err := coll.Add(context.Background(), decodeDoc(t, map[string]any{
		"id": "100", "title": "The quick brown fox", "points": -2678400,
	}))
	if err != nil {
		t.Fatalf("adding doc: %v", err)
	}

	res, err := coll.Search(SearchParams{
		Query: "*", QueryBy: []string{"title"},
		FilterBy: "points:>=1577836800", SortBy: "points:DESC", PerPage: 10, Page: 1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Found != 0 {
		t.Errorf("expected found=0, got %d", res.Found)
	}
}

// ---------------------------------------------------------------------------
// Seed scenario 6: geo sort over 10 Paris landmarks (spec.md §8 scenario 6).
// ---------------------------------------------------------------------------

var parisLandmarks = []struct {
	title    string
	lat, lng float64
}{
	{"Palais Garnier", 48.872576479306765, 2.332291112241466},
	{"Sacre Coeur", 48.888286721920934, 2.342340862419206},
	{"Arc de Triomphe", 48.87538726829884, 2.296113163780903},
	{"Place de la Concorde", 48.86536119187326, 2.321850747347093},
	{"Louvre Musuem", 48.86065813197502, 2.3381285349616725},
	{"Les Invalides", 48.856648379569904, 2.3118555692631357},
	{"Eiffel Tower", 48.85821022164442, 2.294239067890161},
	{"Notre-Dame de Paris", 48.852455825574495, 2.35071182406452},
	{"Musee Grevin", 48.872370541246816, 2.3431536410008906},
	{"Pantheon", 48.84620987789056, 2.345152755563131},
}

func newGeoTestCollection(t *testing.T) *Collection {
	t.Helper()
	coll := newTestCollection(t, []schema.Field{
		{Name: "title", Type: schema.String},
		{Name: "loc", Type: schema.Geopoint},
		{Name: "points", Type: schema.Int32},
	}, "points", 1)

	for i, lm := range parisLandmarks {
		_, _, err := coll.Add(context.Background(), decodeDoc(t, map[string]any{
			"id": fmt.Sprintf("%d", i), "title": lm.title, "loc": []float64{lm.lat, lm.lng}, "points": i,
		}))
		if err != nil {
			t.Fatalf("adding landmark %s: %v", lm.title, err)
		}
	}
	return coll
}

func TestGeoSortAscendingByDistanceFromReferencePoint(t *testing.T) {
	coll := newGeoTestCollection(t)

	res, err := coll.Search(SearchParams{
		Query: "*", FilterBy: "loc: (48.84442912268208, 2.3490714964332353, 20 km)",
		SortBy: "loc(48.84442912268208, 2.3490714964332353):ASC", PerPage: 10, Page: 1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Found != 10 {
		t.Fatalf("expected found=10, got %d", res.Found)
	}
	// Ranking sorts geopoints by squared-Euclidean distance in degree space
	// (see pkg/geo.SquaredEuclidean), not great-circle distance, so this
	// order reflects that metric rather than true physical distance.
	assertIDs(t, hitIDs(res), []string{"9", "7", "4", "8", "0", "3", "5", "1", "6", "2"})
}

func TestGeoSortDescendingIsExactReverseOfAscending(t *testing.T) {
	coll := newGeoTestCollection(t)

	res, err := coll.Search(SearchParams{
		Query: "*", SortBy: "loc(48.84442912268208, 2.3490714964332353):DESC", PerPage: 10, Page: 1,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Found != 10 {
		t.Fatalf("expected found=10, got %d", res.Found)
	}
	ascOrder := []string{"9", "7", "4", "8", "0", "3", "5", "1", "6", "2"}
	want := make([]string, len(ascOrder))
	for i, id := range ascOrder {
		want[len(ascOrder)-1-i] = id
	}
	assertIDs(t, hitIDs(res), want)
}

func TestGeoSortMalformedFieldFormatReturnsBadRequest(t *testing.T) {
	coll := newGeoTestCollection(t)

	_, err := coll.Search(SearchParams{Query: "*", SortBy: "loc(,2.3490714964332353):ASC", PerPage: 10, Page: 1})
	if err == nil {
		t.Fatal("expected error for malformed geo sort clause")
	}
	want := "Geopoint sorting field `loc` must be in the `field(24.56,10.45):ASC` format."
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Round-trip / idempotence laws (spec.md §8).
// ---------------------------------------------------------------------------

func TestAddSearchByIDDeleteSearchByIDReturnsNotFound(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "title", Type: schema.String},
		{Name: "rating", Type: schema.Int32},
	}, "rating", 2)

	ctx := context.Background()
	_, id, err := coll.Add(ctx, decodeDoc(t, map[string]any{"title": "hello world", "rating": 5}))
	if err != nil {
		t.Fatalf("adding doc: %v", err)
	}

	if _, err := coll.Get(ctx, id); err != nil {
		t.Fatalf("expected document to be found before delete: %v", err)
	}

	if err := coll.Remove(ctx, id); err != nil {
		t.Fatalf("removing doc: %v", err)
	}

	_, err = coll.Get(ctx, id)
	if err == nil {
		t.Fatal("expected NotFound after delete")
	}
	if apperrors.HTTPStatusCode(err) != 404 {
		t.Errorf("expected 404 NotFound, got %d", apperrors.HTTPStatusCode(err))
	}
}

func TestShardRoutingIsSeqIDModNumShards(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "rating", Type: schema.Int32},
	}, "rating", 4)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		seqID, _, err := coll.Add(ctx, decodeDoc(t, map[string]any{"rating": i}))
		if err != nil {
			t.Fatalf("adding doc %d: %v", i, err)
		}
		expectedShard := coll.shards[int(seqID)%coll.NumShards]
		if coll.shardFor(seqID) != expectedShard {
			t.Errorf("seq_id %d routed to wrong shard", seqID)
		}
	}
}

func TestIDMonotonicityAcrossAddsAndRemoves(t *testing.T) {
	coll := newTestCollection(t, []schema.Field{
		{Name: "rating", Type: schema.Int32},
	}, "rating", 2)

	ctx := context.Background()
	var lastSeqID uint32
	seen := make(map[uint32]bool)
	for i := 0; i < 10; i++ {
		seqID, id, err := coll.Add(ctx, decodeDoc(t, map[string]any{"rating": i}))
		if err != nil {
			t.Fatalf("adding doc %d: %v", i, err)
		}
		if i > 0 && seqID <= lastSeqID {
			t.Errorf("expected next_seq_id to strictly increase, got %d after %d", seqID, lastSeqID)
		}
		if seen[seqID] {
			t.Errorf("duplicate seq_id %d assigned", seqID)
		}
		seen[seqID] = true
		lastSeqID = seqID
		if i%3 == 0 {
			coll.Remove(ctx, id)
		}
	}
}

func TestDefaultSortingFieldValidationsMatchSchemaLayer(t *testing.T) {
	_, err := schema.New([]schema.Field{
		{Name: "name", Type: schema.String},
		{Name: "tags", Type: schema.String, Array: true},
		{Name: "age", Type: schema.Int32},
		{Name: "average", Type: schema.Int32},
	}, "name", false)
	if err == nil {
		t.Fatal("expected error: default sorting field must be numeric")
	}

	_, err = schema.New([]schema.Field{
		{Name: "name", Type: schema.String},
		{Name: "age", Type: schema.Int32},
	}, "NOT-DEFINED", false)
	if err == nil {
		t.Fatal("expected error: default sorting field must exist in schema")
	}
}
