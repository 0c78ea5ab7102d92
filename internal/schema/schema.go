package schema

import (
	"fmt"

	apperrors "github.com/monishk/shardsearch/pkg/errors"
)

// Schema is the ordered field list bound to a collection at creation time.
// Schema evolution after creation is a non-goal: once a collection exists
// its Schema is immutable.
type Schema struct {
	Fields              []Field
	DefaultSortingField string
	IndexAllFields      bool

	byName map[string]Field
}

// New builds a Schema from an ordered field list, validating the
// default-sorting-field invariant from spec.md §3: it must exist, be
// single-valued numeric, and non-optional.
func New(fields []Field, defaultSortingField string, indexAllFields bool) (*Schema, error) {
	s := &Schema{
		Fields:              fields,
		DefaultSortingField: defaultSortingField,
		IndexAllFields:      indexAllFields,
		byName:              make(map[string]Field, len(fields)),
	}
	for _, f := range fields {
		if _, dup := s.byName[f.Name]; dup {
			return nil, apperrors.BadRequest("field `%s` is declared more than once", f.Name)
		}
		s.byName[f.Name] = f
	}
	if defaultSortingField == "" {
		return s, nil
	}
	f, ok := s.byName[defaultSortingField]
	if !ok {
		return nil, apperrors.BadRequest("default sorting field `%s` is not part of the schema", defaultSortingField)
	}
	if !f.IsSortEligible() {
		return nil, apperrors.BadRequest("default sorting field `%s` must be a single-valued numeric field", defaultSortingField)
	}
	if f.Optional {
		return nil, apperrors.BadRequest("default sorting field `%s` must not be optional", defaultSortingField)
	}
	return s, nil
}

// Field returns the field named name and whether it exists.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

// MustField returns the field named name, panicking if it does not exist.
// Callers must have already validated the name exists via Field.
func (s *Schema) MustField(name string) Field {
	f, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: field %q not found", name))
	}
	return f
}

// AddDynamicField registers a new optional field discovered at ingestion
// time when IndexAllFields is set. It is not persisted as a schema change;
// each document independently triggers this the first time an unknown key
// of a recognized scalar type is observed.
func (s *Schema) AddDynamicField(name string, t FieldType, array bool) Field {
	if f, ok := s.byName[name]; ok {
		return f
	}
	f := Field{Name: name, Type: t, Array: array, Optional: true}
	s.Fields = append(s.Fields, f)
	s.byName[name] = f
	return f
}

// Clone returns a deep copy of the schema, used when a collection's schema
// must be handed to a shard without sharing the dynamic-field slice.
func (s *Schema) Clone() *Schema {
	fields := make([]Field, len(s.Fields))
	copy(fields, s.Fields)
	byName := make(map[string]Field, len(s.byName))
	for k, v := range s.byName {
		byName[k] = v
	}
	return &Schema{
		Fields:              fields,
		DefaultSortingField: s.DefaultSortingField,
		IndexAllFields:      s.IndexAllFields,
		byName:              byName,
	}
}
