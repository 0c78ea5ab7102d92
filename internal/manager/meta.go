package manager

import "github.com/monishk/shardsearch/internal/schema"

// fieldJSON is the wire representation of a schema.Field inside collection
// meta JSON (spec.md §6: "fields[]").
type fieldJSON struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Facet         bool   `json:"facet"`
	Optional      bool   `json:"optional"`
	GeoResolution int    `json:"geo_resolution,omitempty"`
}

// collectionMetaJSON is the wire representation of a collection's meta
// record, per spec.md §6's "Meta JSON fields".
type collectionMetaJSON struct {
	Name                string      `json:"name"`
	ID                  uint32      `json:"id"`
	CreatedAt           int64       `json:"created_at"`
	NumMemoryShards     int         `json:"num_memory_shards"`
	DefaultSortingField string      `json:"default_sorting_field"`
	Fields              []fieldJSON `json:"fields"`
	IndexAllFields      bool        `json:"index_all_fields"`
}

func toFieldJSON(f schema.Field) fieldJSON {
	t := f.Type.String()
	if f.Array {
		t += "[]"
	}
	return fieldJSON{Name: f.Name, Type: t, Facet: f.Facet, Optional: f.Optional, GeoResolution: f.GeoResolution}
}

func fromFieldJSON(fj fieldJSON) (schema.Field, error) {
	t, arr, err := schema.ParseFieldType(fj.Type)
	if err != nil {
		return schema.Field{}, err
	}
	return schema.Field{
		Name:          fj.Name,
		Type:          t,
		Array:         arr,
		Facet:         fj.Facet,
		Optional:      fj.Optional,
		GeoResolution: fj.GeoResolution,
	}, nil
}

func toMetaJSON(id uint32, name string, createdAt int64, numShards int, sc *schema.Schema) collectionMetaJSON {
	fields := make([]fieldJSON, len(sc.Fields))
	for i, f := range sc.Fields {
		fields[i] = toFieldJSON(f)
	}
	return collectionMetaJSON{
		Name:                name,
		ID:                  id,
		CreatedAt:           createdAt,
		NumMemoryShards:     numShards,
		DefaultSortingField: sc.DefaultSortingField,
		Fields:              fields,
		IndexAllFields:      sc.IndexAllFields,
	}
}

func fromMetaJSON(m collectionMetaJSON) (*schema.Schema, error) {
	fields := make([]schema.Field, 0, len(m.Fields))
	for _, fj := range m.Fields {
		f, err := fromFieldJSON(fj)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return schema.New(fields, m.DefaultSortingField, m.IndexAllFields)
}
