package shard

// ScorePayload is the fixed per-document record spec.md §3 calls the
// "score payload": the value of every sort-eligible field plus a
// text-match placeholder filled in per-query by the ranker.
type ScorePayload struct {
	SeqID       uint32
	SortValues  map[string]any // field name -> int32|int64|float64|geo.Point, only sort-eligible fields
	TextMatch   int
	Deleted     bool
}
