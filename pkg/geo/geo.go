// Package geo provides the geo-cell hashing and distance primitives used by
// the shard index's geopoint fields: a coarse H3-like cell id for indexing
// haversine distance for exact radius post-filtering, and a squared
// Euclidean distance in degree space for geo-sort ordering.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a (latitude, longitude) pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// CellID buckets a point into a coarse grid cell at the given resolution.
// Resolution ranges 0 (coarsest) to 15 (finest); each step roughly halves
// the cell's angular width, mirroring the granularity of a real H3 index
// closely enough to accelerate radius queries, by enumerating the cells
// that cover the query area, without needing the real hexagonal grid.
func CellID(p Point, resolution int) uint64 {
	if resolution < 0 {
		resolution = 0
	}
	if resolution > 15 {
		resolution = 15
	}
	steps := 1 << uint(resolution)
	latIdx := uint64(math.Floor((p.Lat + 90.0) / 180.0 * float64(steps)))
	lngIdx := uint64(math.Floor((p.Lng + 180.0) / 360.0 * float64(steps)))
	return (latIdx << 32) | (lngIdx & 0xFFFFFFFF)
}

// CoveringCells returns the set of cell ids that intersect a disc of the
// given radius (meters) centered at p, at the given resolution. It samples
// the disc's bounding box on the cell grid; callers must still apply
// HaversineMeters to discard false positives at the disc's corners.
func CoveringCells(p Point, radiusMeters float64, resolution int) []uint64 {
	if resolution < 0 {
		resolution = 0
	}
	if resolution > 15 {
		resolution = 15
	}
	steps := 1 << uint(resolution)
	latSpan := radiusMeters / (earthRadiusMeters * math.Pi / 180.0)
	lngSpan := latSpan / math.Max(math.Cos(p.Lat*math.Pi/180.0), 0.01)

	minLat, maxLat := p.Lat-latSpan, p.Lat+latSpan
	minLng, maxLng := p.Lng-lngSpan, p.Lng+lngSpan

	cellWidth := 180.0 / float64(steps)
	seen := make(map[uint64]struct{})
	var cells []uint64
	for lat := minLat; lat <= maxLat+cellWidth; lat += cellWidth {
		for lng := minLng; lng <= maxLng+cellWidth; lng += cellWidth {
			id := CellID(Point{Lat: clampLat(lat), Lng: wrapLng(lng)}, resolution)
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				cells = append(cells, id)
			}
		}
	}
	return cells
}

// HaversineMeters returns the great-circle distance between a and b, in
// meters.
func HaversineMeters(a, b Point) float64 {
	lat1, lat2 := a.Lat*math.Pi/180.0, b.Lat*math.Pi/180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusMeters * c
}

// SquaredEuclidean returns the squared planar distance between a and b in
// degree-space, used for geo-sort comparisons where only relative ordering
// matters and the cost of trigonometry per comparison is not worth paying.
func SquaredEuclidean(a, b Point) float64 {
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return dLat*dLat + dLng*dLng
}

func clampLat(lat float64) float64 {
	if lat > 90 {
		return 90
	}
	if lat < -90 {
		return -90
	}
	return lat
}

func wrapLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
