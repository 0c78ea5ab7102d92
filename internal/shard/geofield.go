package shard

import "github.com/monishk/shardsearch/pkg/geo"

// GeoIndex maps H3-like cell ids at a field's resolution to the set of
// documents whose geopoint falls in that cell.
type GeoIndex struct {
	resolution int
	cells      map[uint64]map[uint32]struct{}
	points     map[uint32]geo.Point // seq_id -> stored point, for haversine post-filtering
}

func NewGeoIndex(resolution int) *GeoIndex {
	return &GeoIndex{resolution: resolution, cells: make(map[uint64]map[uint32]struct{}), points: make(map[uint32]geo.Point)}
}

func (g *GeoIndex) Insert(p geo.Point, seqID uint32) {
	id := geo.CellID(p, g.resolution)
	set, ok := g.cells[id]
	if !ok {
		set = make(map[uint32]struct{})
		g.cells[id] = set
	}
	set[seqID] = struct{}{}
	g.points[seqID] = p
}

func (g *GeoIndex) Erase(p geo.Point, seqID uint32) {
	id := geo.CellID(p, g.resolution)
	if set, ok := g.cells[id]; ok {
		delete(set, seqID)
		if len(set) == 0 {
			delete(g.cells, id)
		}
	}
	delete(g.points, seqID)
}

// Point returns the stored point for seqID, if indexed.
func (g *GeoIndex) Point(seqID uint32) (geo.Point, bool) {
	p, ok := g.points[seqID]
	return p, ok
}

// Radius resolves the covering cells at the field's resolution, unions
// their candidates, then post-filters by exact haversine distance —
// spec.md §4.3's geo filter.
func (g *GeoIndex) Radius(center geo.Point, radiusMeters float64) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, cellID := range geo.CoveringCells(center, radiusMeters, g.resolution) {
		for seqID := range g.cells[cellID] {
			if geo.HaversineMeters(center, g.points[seqID]) <= radiusMeters {
				out[seqID] = struct{}{}
			}
		}
	}
	return out
}
