package planner

import (
	"github.com/monishk/shardsearch/internal/schema"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// Plan is the fully validated, typed query the shard index executes: a
// parsed filter expression and parsed sort clauses, both checked against
// the collection's schema.
type Plan struct {
	Filters []FilterClause
	Sorts   []SortClause
}

// Build parses filterBy and sortBy and validates every referenced field
// name against sc, filling in the default_sorting_field DESC fallback
// when sortBy is empty (spec.md §8's "empty sort-clause fallback").
func Build(sc *schema.Schema, filterBy, sortBy string) (*Plan, error) {
	filters, err := ParseFilter(filterBy)
	if err != nil {
		return nil, err
	}
	for _, f := range filters {
		if f.Kind == Geo {
			continue
		}
		if _, ok := sc.Field(f.Field); !ok {
			return nil, apperrors.BadRequest("Could not find a filter field named `%s` in the schema.", f.Field)
		}
	}

	sorts, err := ParseSort(sortBy)
	if err != nil {
		return nil, err
	}
	if len(sorts) == 0 {
		if sc.DefaultSortingField == "" {
			return &Plan{Filters: filters}, nil
		}
		sorts = []SortClause{{Field: sc.DefaultSortingField, Descending: true}}
	}
	for _, sc2 := range sorts {
		if sc2.Field == TextMatchField {
			continue
		}
		f, ok := sc.Field(sc2.Field)
		if !ok {
			return nil, apperrors.BadRequest("Could not find a sort field named `%s` in the schema.", sc2.Field)
		}
		if sc2.GeoRef != nil {
			if f.Type != schema.Geopoint {
				return nil, apperrors.BadRequest("sort field `%s` is not a geopoint field", sc2.Field)
			}
			continue
		}
		if !f.IsSortEligible() && f.Type != schema.Geopoint {
			return nil, apperrors.BadRequest("sort field `%s` must be a single-valued numeric field", sc2.Field)
		}
	}
	return &Plan{Filters: filters, Sorts: sorts}, nil
}
