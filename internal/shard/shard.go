// Package shard implements the per-shard in-memory index: a text trie per
// string field, a numeric index per numeric field, a geo-cell index per
// geopoint field, facet accounting, and a per-document score payload.
// Single-writer, multi-reader, per spec.md §4.3 and §5.
package shard

import (
	"sync"

	"github.com/monishk/shardsearch/internal/schema"
	"github.com/monishk/shardsearch/pkg/geo"
)

// Shard owns the RAM-resident structures for one partition of a
// collection's seq_id space.
type Shard struct {
	mu sync.RWMutex

	tries    map[string]*Trie           // string fields, tokenized
	numerics map[string]AnyNumericIndex // int32/int64/float numeric fields
	geos     map[string]*GeoIndex       // geopoint fields
	facets   map[string]map[uint32]string

	payloads map[uint32]*ScorePayload
	indexed  map[uint32]map[string]any // last-indexed field values, for Remove
}

func New() *Shard {
	return &Shard{
		tries:    make(map[string]*Trie),
		numerics: make(map[string]AnyNumericIndex),
		geos:     make(map[string]*GeoIndex),
		facets:   make(map[string]map[uint32]string),
		payloads: make(map[uint32]*ScorePayload),
		indexed:  make(map[uint32]map[string]any),
	}
}

func (s *Shard) trieFor(field string) *Trie {
	t, ok := s.tries[field]
	if !ok {
		t = NewTrie()
		s.tries[field] = t
	}
	return t
}

func (s *Shard) numericFor(f schema.Field) AnyNumericIndex {
	idx, ok := s.numerics[f.Name]
	if ok {
		return idx
	}
	switch f.Type {
	case schema.Int32:
		idx = NewNumericIndex[int32]()
	case schema.Int64:
		idx = NewNumericIndex[int64]()
	default:
		idx = NewNumericIndex[float64]()
	}
	s.numerics[f.Name] = idx
	return idx
}

func (s *Shard) geoFor(f schema.Field) *GeoIndex {
	g, ok := s.geos[f.Name]
	if !ok {
		res := f.GeoResolution
		if res == 0 {
			res = schema.DefaultGeoResolution
		}
		g = NewGeoIndex(res)
		s.geos[f.Name] = g
	}
	return g
}

// Add indexes seqID's field values into every applicable structure. It
// acquires the shard's exclusive lock for the whole mutation, matching the
// "no lock held across I/O" rule since values are already fully validated
// and prepared by the time Add is called.
func (s *Shard) Add(sc *schema.Schema, seqID uint32, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := &ScorePayload{SeqID: seqID, SortValues: make(map[string]any)}
	stored := make(map[string]any, len(values))

	for _, f := range sc.Fields {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		stored[f.Name] = v
		s.indexField(f, seqID, v)
		if f.IsSortEligible() {
			payload.SortValues[f.Name] = v
		}
	}
	s.payloads[seqID] = payload
	s.indexed[seqID] = stored
	return nil
}

func (s *Shard) indexField(f schema.Field, seqID uint32, v any) {
	switch f.Type {
	case schema.String:
		if f.Array {
			for pos, elem := range v.([]any) {
				s.indexToken(f.Name, elem.(string), seqID, pos)
			}
		} else {
			s.indexToken(f.Name, v.(string), seqID, 0)
		}
	case schema.Int32, schema.Int64, schema.Float:
		if f.Array {
			for _, elem := range v.([]any) {
				s.numericFor(f).InsertAny(elem, seqID)
			}
		} else {
			s.numericFor(f).InsertAny(v, seqID)
		}
	case schema.Geopoint:
		s.geoFor(f).Insert(v.(geo.Point), seqID)
	case schema.Bool:
		// bool fields participate only in facets/filters, not text or sort.
	}
	if f.Facet {
		s.indexFacetValue(f, seqID, v)
	}
}

func (s *Shard) indexToken(field, text string, seqID uint32, arrayPos int) {
	trie := s.trieFor(field)
	counts := make(map[string]int)
	for _, tok := range Tokenize(text) {
		counts[tok]++
	}
	for tok, c := range counts {
		trie.Insert(tok, seqID, arrayPos, c)
	}
}

func (s *Shard) indexFacetValue(f schema.Field, seqID uint32, v any) {
	idxName := f.Name
	if f.Type != schema.String {
		idxName = f.FacetIndexName()
	}
	m, ok := s.facets[idxName]
	if !ok {
		m = make(map[uint32]string)
		s.facets[idxName] = m
	}
	if f.Array {
		// facet on arrays: store the comma-joined stringified values; Facets
		// splits them back into elements at query time.
		arr := v.([]any)
		strs := make([]string, len(arr))
		for i, e := range arr {
			strs[i] = StringifyForFacet(e)
		}
		m[seqID] = joinCSV(strs)
		return
	}
	m[seqID] = StringifyForFacet(v)
}

func joinCSV(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// Remove erases seqID from every structure it was indexed under and drops
// its score payload.
func (s *Shard) Remove(sc *schema.Schema, seqID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.indexed[seqID]
	if !ok {
		return
	}
	for _, f := range sc.Fields {
		v, ok := stored[f.Name]
		if !ok {
			continue
		}
		s.unindexField(f, seqID, v)
	}
	delete(s.payloads, seqID)
	delete(s.indexed, seqID)
}

func (s *Shard) unindexField(f schema.Field, seqID uint32, v any) {
	switch f.Type {
	case schema.String:
		if f.Array {
			for _, elem := range v.([]any) {
				for _, tok := range Tokenize(elem.(string)) {
					s.trieFor(f.Name).Erase(tok, seqID)
				}
			}
		} else {
			for _, tok := range Tokenize(v.(string)) {
				s.trieFor(f.Name).Erase(tok, seqID)
			}
		}
	case schema.Int32, schema.Int64, schema.Float:
		if f.Array {
			for _, elem := range v.([]any) {
				s.numericFor(f).EraseAny(elem, seqID)
			}
		} else {
			s.numericFor(f).EraseAny(v, seqID)
		}
	case schema.Geopoint:
		s.geoFor(f).Erase(v.(geo.Point), seqID)
	}
	if f.Facet {
		idxName := f.Name
		if f.Type != schema.String {
			idxName = f.FacetIndexName()
		}
		delete(s.facets[idxName], seqID)
	}
}

// Payload returns the score payload for seqID under a read lock.
func (s *Shard) Payload(seqID uint32) (*ScorePayload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[seqID]
	return p, ok
}

// DocCount returns the number of live documents in the shard.
func (s *Shard) DocCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payloads)
}

// AllSeqIDs returns every live seq_id in the shard, used by match-all
// queries.
func (s *Shard) AllSeqIDs() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uint32, 0, len(s.payloads))
	for id := range s.payloads {
		out = append(out, id)
	}
	return out
}
