package importer

import (
	"github.com/rpattn/recordport/internal/domain"
)

// Descriptor is the schema metadata one import run operates on: the importable
// fields in declaration order and the effective uniqueness key. It is derived
// once per run and never changes mid-run.
type Descriptor struct {
	Fields    []domain.FieldDefinition
	UniqueKey []string
}

// ResolveDescriptor computes the descriptor for a schema under the given
// options.
//
// A field is importable iff it is not a relational collection, passes the
// include filter (empty filter admits everything), and is not excluded. The
// uniqueness key is, in order of preference: the explicit override, the
// schema's unique-together declaration, the constraint matching the
// conventional default name, the first declared constraint. An empty key
// disables deduplication and the update path entirely: every valid row
// inserts.
func ResolveDescriptor(schema domain.RecordSchema, opts Options) Descriptor {
	include := toSet(opts.IncludeFields)
	exclude := toSet(opts.ExcludeFields)

	fields := make([]domain.FieldDefinition, 0, len(schema.Fields))
	for _, field := range schema.Fields {
		if field.Type == domain.FieldTypeRecordRefArray {
			continue
		}
		if len(include) > 0 {
			if _, ok := include[field.Name]; !ok {
				continue
			}
		}
		if len(exclude) > 0 {
			if _, ok := exclude[field.Name]; ok {
				continue
			}
		}
		fields = append(fields, field)
	}

	return Descriptor{
		Fields:    fields,
		UniqueKey: resolveUniqueKey(schema, opts),
	}
}

func resolveUniqueKey(schema domain.RecordSchema, opts Options) []string {
	if len(opts.UniqueKey) > 0 {
		return append([]string(nil), opts.UniqueKey...)
	}
	if len(schema.UniqueTogether) > 0 {
		return append([]string(nil), schema.UniqueTogether...)
	}
	if len(schema.UniqueConstraints) > 0 {
		defaultName := schema.DefaultConstraintName()
		for _, constraint := range schema.UniqueConstraints {
			if constraint.Name == defaultName {
				return append([]string(nil), constraint.Fields...)
			}
		}
		return append([]string(nil), schema.UniqueConstraints[0].Fields...)
	}
	return nil
}

// FieldNames returns the importable field names in declaration order.
func (d Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, field := range d.Fields {
		names[i] = field.Name
	}
	return names
}

// UpdateFields returns the fields rewritten when a conflicting stored record
// is updated: every importable field that is not part of the uniqueness key.
func (d Descriptor) UpdateFields() []string {
	key := toSet(d.UniqueKey)
	fields := make([]string, 0, len(d.Fields))
	for _, field := range d.Fields {
		if _, ok := key[field.Name]; ok {
			continue
		}
		fields = append(fields, field.Name)
	}
	return fields
}

// DedupEnabled reports whether a uniqueness key is in effect.
func (d Descriptor) DedupEnabled() bool {
	return len(d.UniqueKey) > 0
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
