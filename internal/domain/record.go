package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawRecord is one source row as read from the file: field name to raw string
// value, no null coercion, no type interpretation.
type RawRecord struct {
	RowNumber int
	Values    map[string]string
}

// Record represents a persisted (or about to be persisted) instance of a
// record schema. Field values are stored as a JSONB document.
type Record struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization_id"`
	SchemaID       uuid.UUID      `json:"schema_id"`
	SchemaName     string         `json:"schema_name"`
	Fields         map[string]any `json:"fields"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewRecord creates a new record with immutable pattern
func NewRecord(organizationID, schemaID uuid.UUID, schemaName string, fields map[string]any) Record {
	now := time.Now()
	return Record{
		ID:             uuid.New(),
		OrganizationID: organizationID,
		SchemaID:       schemaID,
		SchemaName:     schemaName,
		Fields:         copyFieldValues(fields),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// WithField returns a new record with an added/updated field value
func (r Record) WithField(name string, value any) Record {
	fields := copyFieldValues(r.Fields)
	fields[name] = value

	out := r
	out.Fields = fields
	out.UpdatedAt = time.Now()
	return out
}

// WithFields returns a new record with the given field values merged over the
// existing ones. Fields not named are left untouched.
func (r Record) WithFields(values map[string]any) Record {
	fields := copyFieldValues(r.Fields)
	for name, value := range values {
		fields[name] = value
	}

	out := r
	out.Fields = fields
	out.UpdatedAt = time.Now()
	return out
}

// GetFieldsAsJSONB returns the field values as JSONB for database storage
func (r *Record) GetFieldsAsJSONB() (json.RawMessage, error) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	return json.Marshal(r.Fields)
}

// FromJSONBFieldValues creates a field value map from JSONB data
func FromJSONBFieldValues(fieldsJSON json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// copyFieldValues creates a shallow copy of the field value map so the
// with-style helpers never alias the receiver's map.
func copyFieldValues(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
