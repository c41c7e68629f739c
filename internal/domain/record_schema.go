package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FieldType represents the declared type of a field in a record schema
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	// FieldTypeRecordRef holds a single reference to another record by its
	// canonical reference string.
	FieldTypeRecordRef FieldType = "record_ref"
	// FieldTypeRecordRefArray holds a collection of references. It is the one
	// relational-collection type and is never importable from tabular data.
	FieldTypeRecordRefArray FieldType = "record_ref_array"
)

// FieldDefinition describes one field of a record schema, including the
// constraints a row must satisfy on import.
type FieldDefinition struct {
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Unique    bool      `json:"unique,omitempty"`
	MaxLength int       `json:"max_length,omitempty"`
	Choices   []string  `json:"choices,omitempty"`
	Pattern   string    `json:"pattern,omitempty"` // RE2 pattern for string fields
}

// UniqueConstraint is a named multi-field uniqueness declaration on a schema.
type UniqueConstraint struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// RecordSchema declares the shape of the records stored under one name for an
// organization: ordered field definitions plus uniqueness metadata.
type RecordSchema struct {
	ID                uuid.UUID          `json:"id"`
	OrganizationID    uuid.UUID          `json:"organization_id"`
	Name              string             `json:"name"`
	Description       string             `json:"description"`
	Fields            []FieldDefinition  `json:"fields"`
	UniqueTogether    []string           `json:"unique_together,omitempty"`
	UniqueConstraints []UniqueConstraint `json:"unique_constraints,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewRecordSchema creates a new record schema with immutable pattern
func NewRecordSchema(organizationID uuid.UUID, name, description string, fields []FieldDefinition) RecordSchema {
	now := time.Now()
	return RecordSchema{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		Name:           name,
		Description:    description,
		Fields:         copyFieldDefs(fields),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithField returns a new schema with an added/updated field definition
func (rs RecordSchema) WithField(field FieldDefinition) RecordSchema {
	fields := copyFieldDefs(rs.Fields)

	found := false
	for i, existing := range fields {
		if existing.Name == field.Name {
			fields[i] = field
			found = true
			break
		}
	}
	if !found {
		fields = append(fields, field)
	}

	out := rs
	out.Fields = fields
	out.UpdatedAt = time.Now()
	return out
}

// WithUniqueTogether returns a new schema with the given multi-field
// uniqueness declaration.
func (rs RecordSchema) WithUniqueTogether(fields ...string) RecordSchema {
	out := rs
	out.UniqueTogether = append([]string(nil), fields...)
	out.UpdatedAt = time.Now()
	return out
}

// WithUniqueConstraint returns a new schema with an added named uniqueness
// constraint.
func (rs RecordSchema) WithUniqueConstraint(constraint UniqueConstraint) RecordSchema {
	out := rs
	out.UniqueConstraints = append(append([]UniqueConstraint(nil), rs.UniqueConstraints...), constraint)
	out.UpdatedAt = time.Now()
	return out
}

// Field returns the definition for the named field, if declared.
func (rs RecordSchema) Field(name string) (FieldDefinition, bool) {
	for _, field := range rs.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// DefaultConstraintName is the conventional name the introspector prefers when
// a schema declares several uniqueness constraints.
func (rs RecordSchema) DefaultConstraintName() string {
	return fmt.Sprintf("%s_unique", rs.Name)
}

// GetFieldsAsJSONB returns the field definitions as JSONB for database storage
func (rs RecordSchema) GetFieldsAsJSONB() (json.RawMessage, error) {
	return json.Marshal(rs.Fields)
}

// FromJSONBFields creates field definitions from JSONB data
func FromJSONBFields(fieldsJSON json.RawMessage) ([]FieldDefinition, error) {
	var fields []FieldDefinition
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

func copyFieldDefs(fields []FieldDefinition) []FieldDefinition {
	if fields == nil {
		return nil
	}
	out := make([]FieldDefinition, len(fields))
	copy(out, fields)
	return out
}
