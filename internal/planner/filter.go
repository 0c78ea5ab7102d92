// Package planner parses the wire-format filter and sort grammars from
// spec.md §6 into a typed plan the shard index can execute directly.
package planner

import (
	"strings"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// ClauseKind discriminates the four filter clause shapes the grammar
// allows.
type ClauseKind int

const (
	ValueList ClauseKind = iota
	Range
	NumericOp
	Geo
)

// FilterClause is one parsed `field:...` predicate.
type FilterClause struct {
	Field  string
	Negate bool
	Kind   ClauseKind

	Values []string // ValueList

	RangeLo, RangeHi string // Range

	Op      string // NumericOp: >=, <=, >, <, =
	OpValue string

	GeoLat, GeoLng, GeoRadius float64
	GeoUnit                   string
}

// ParseFilter parses `expr := clause ("&&" clause)*` from spec.md §6.
func ParseFilter(expr string) ([]FilterClause, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	parts := splitRespectingBackticks(expr, "&&")
	clauses := make([]FilterClause, 0, len(parts))
	for _, part := range parts {
		c, err := parseClause(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	return clauses, nil
}

func parseClause(s string) (FilterClause, error) {
	idx := strings.Index(s, ":")
	if idx < 0 {
		return FilterClause{}, apperrors.BadRequest("filter clause `%s` is missing a `:`", s)
	}
	field := s[:idx]
	rest := strings.TrimSpace(s[idx+1:])
	if field == "" || rest == "" {
		return FilterClause{}, apperrors.BadRequest("filter clause `%s` is malformed", s)
	}

	if strings.HasPrefix(rest, "(") {
		return parseGeoClause(field, rest)
	}

	negate := false
	if strings.HasPrefix(rest, "!") {
		negate = true
		rest = strings.TrimPrefix(rest[1:], "=")
	}

	if op, val, ok := splitNumericOp(rest); ok {
		return FilterClause{Field: field, Negate: negate, Kind: NumericOp, Op: op, OpValue: val}, nil
	}

	if lo, hi, ok := splitRange(rest); ok {
		return FilterClause{Field: field, Negate: negate, Kind: Range, RangeLo: lo, RangeHi: hi}, nil
	}

	values := splitRespectingBackticks(rest, ",")
	for i, v := range values {
		values[i] = unescapeBackticks(strings.TrimSpace(v))
	}
	return FilterClause{Field: field, Negate: negate, Kind: ValueList, Values: values}, nil
}

func parseGeoClause(field, rest string) (FilterClause, error) {
	if !strings.HasSuffix(rest, ")") {
		return FilterClause{}, apperrors.BadRequest("geo filter on `%s` is missing a closing `)`", field)
	}
	inner := rest[1 : len(rest)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 3 {
		return FilterClause{}, apperrors.BadRequest("geo filter on `%s` must be `(lat, lng, radius unit)`", field)
	}
	lat, err := parseFloat(strings.TrimSpace(parts[0]))
	if err != nil {
		return FilterClause{}, apperrors.BadRequest("geo filter on `%s` has an invalid latitude", field)
	}
	lng, err := parseFloat(strings.TrimSpace(parts[1]))
	if err != nil {
		return FilterClause{}, apperrors.BadRequest("geo filter on `%s` has an invalid longitude", field)
	}
	radiusStr := strings.TrimSpace(parts[2])
	radius, unit, err := parseRadius(radiusStr)
	if err != nil {
		return FilterClause{}, apperrors.BadRequest("geo filter on `%s` has an invalid radius `%s`", field, radiusStr)
	}
	return FilterClause{Field: field, Kind: Geo, GeoLat: lat, GeoLng: lng, GeoRadius: radius, GeoUnit: unit}, nil
}

func parseRadius(s string) (float64, string, error) {
	unit := "km"
	numPart := s
	for _, u := range []string{"km", "mi"} {
		if strings.HasSuffix(s, u) {
			unit = u
			numPart = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}
	v, err := parseFloat(numPart)
	return v, unit, err
}

func splitNumericOp(s string) (op, value string, ok bool) {
	for _, candidate := range []string{">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(s, candidate) {
			return candidate, strings.TrimSpace(s[len(candidate):]), true
		}
	}
	return "", "", false
}

func splitRange(s string) (lo, hi string, ok bool) {
	i := strings.Index(s, "..")
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+2:]), true
}

// splitRespectingBackticks splits s on sep, treating backtick-delimited
// spans as opaque so a backtick-escaped value may contain sep literally.
func splitRespectingBackticks(s, sep string) []string {
	var parts []string
	inBacktick := false
	start := 0
	i := 0
	for i < len(s) {
		if s[i] == '`' {
			inBacktick = !inBacktick
			i++
			continue
		}
		if !inBacktick && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	parts = append(parts, s[start:])
	return parts
}

func unescapeBackticks(s string) string {
	return strings.ReplaceAll(s, "`", "")
}
