package planner

import (
	"strconv"
	"strings"

	"github.com/monishk/shardsearch/pkg/geo"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

const TextMatchField = "_text_match"

// SortClause is one parsed `sort_by` clause: a field name, direction, and
// (for a geo field) the reference point distances are computed against.
type SortClause struct {
	Field      string
	Descending bool
	GeoRef     *geo.Point
}

const MaxSortClauses = 3

// ParseSort parses spec.md §6's sort grammar: up to MaxSortClauses
// comma-separated `name ("(" lat "," lng ")")? ":" ("ASC"|"DESC")` clauses,
// case-insensitive on direction. sortBy == "" yields no clauses; callers
// fall back to the collection's default sorting field DESC.
func ParseSort(sortBy string) ([]SortClause, error) {
	sortBy = strings.TrimSpace(sortBy)
	if sortBy == "" {
		return nil, nil
	}
	parts := splitSortClauses(sortBy)
	if len(parts) > MaxSortClauses {
		return nil, apperrors.BadRequest("Only upto 3 sort_by fields can be specified.")
	}
	clauses := make([]SortClause, 0, len(parts))
	for _, part := range parts {
		c, err := parseSortClause(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func parseSortClause(s string) (SortClause, error) {
	segs := strings.Split(s, ":")
	if len(segs) != 2 {
		return SortClause{}, apperrors.BadRequest("sort clause `%s` must be `field:ASC` or `field:DESC`", s)
	}
	fieldPart := strings.TrimSpace(segs[0])
	dirPart := strings.ToUpper(strings.TrimSpace(segs[1]))
	var descending bool
	switch dirPart {
	case "ASC":
		descending = false
	case "DESC":
		descending = true
	default:
		return SortClause{}, apperrors.BadRequest("sort clause `%s` direction must be ASC or DESC", s)
	}

	if !strings.Contains(fieldPart, "(") {
		return SortClause{Field: fieldPart, Descending: descending}, nil
	}

	open := strings.Index(fieldPart, "(")
	name := fieldPart[:open]
	if !strings.HasSuffix(fieldPart, ")") {
		return SortClause{}, malformedGeoSort(name)
	}
	inner := fieldPart[open+1 : len(fieldPart)-1]
	coords := strings.Split(inner, ",")
	if len(coords) != 2 {
		return SortClause{}, malformedGeoSort(name)
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
	if err1 != nil || err2 != nil {
		return SortClause{}, malformedGeoSort(name)
	}
	ref := geo.Point{Lat: lat, Lng: lng}
	return SortClause{Field: name, Descending: descending, GeoRef: &ref}, nil
}

func malformedGeoSort(name string) error {
	return apperrors.BadRequest("Geopoint sorting field `%s` must be in the `field(24.56,10.45):ASC` format.", name)
}

// splitSortClauses splits on top-level commas, treating "(...)" spans as
// opaque so a geo-sort reference point's internal comma isn't mistaken for
// a clause separator.
func splitSortClauses(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}
