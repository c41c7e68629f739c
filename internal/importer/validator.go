package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/recordport/internal/domain"
	"github.com/rpattn/recordport/internal/repository"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

// RowValidator converts one raw string row into typed, constraint-checked
// field values. Uniqueness is checked against the persistent store and
// reported with its own error code so the reconciler can route the row to the
// update path.
type RowValidator struct {
	schema   domain.RecordSchema
	desc     Descriptor
	store    repository.RecordStore
	patterns map[string]*regexp.Regexp
}

// NewRowValidator creates a validator for one import run. Field patterns are
// compiled once and reused for every row.
func NewRowValidator(schema domain.RecordSchema, desc Descriptor, store repository.RecordStore) (*RowValidator, error) {
	patterns := make(map[string]*regexp.Regexp)
	for _, field := range desc.Fields {
		if field.Pattern == "" {
			continue
		}
		compiled, err := regexp.Compile(field.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for field %s: %w", field.Name, err)
		}
		patterns[field.Name] = compiled
	}
	return &RowValidator{
		schema:   schema,
		desc:     desc,
		store:    store,
		patterns: patterns,
	}, nil
}

// Validate coerces and checks one raw record. It returns the coerced field
// values (populated for every field that passed coercion, even when the row
// as a whole failed), a row error describing any validation failures, and an
// infrastructural error when the store could not be consulted. A nil row
// error means the row is clean.
func (v *RowValidator) Validate(ctx context.Context, raw domain.RawRecord) (map[string]any, *domain.RowError, error) {
	rowErr := domain.NewRowError(raw)
	fields := make(map[string]any, len(v.desc.Fields))

	for _, field := range v.desc.Fields {
		value := strings.TrimSpace(raw.Values[field.Name])
		if value == "" {
			if field.Required {
				rowErr.AddFieldError(field.Name, domain.FieldError{
					Code:    domain.ErrCodeRequired,
					Message: fmt.Sprintf("field %s is required", field.Name),
				})
			}
			continue
		}

		coerced, err := coerceValue(field.Type, value)
		if err != nil {
			rowErr.AddFieldError(field.Name, domain.FieldError{
				Code:    domain.ErrCodeType,
				Message: err.Error(),
			})
			continue
		}

		if ferr := v.checkConstraints(field, coerced); ferr != nil {
			rowErr.AddFieldError(field.Name, *ferr)
			continue
		}

		fields[field.Name] = coerced
	}

	if err := v.checkUniqueness(ctx, fields, rowErr); err != nil {
		return nil, nil, err
	}

	if rowErr.HasErrors() {
		return fields, rowErr, nil
	}
	return fields, nil, nil
}

func (v *RowValidator) checkConstraints(field domain.FieldDefinition, value any) *domain.FieldError {
	str, isString := value.(string)

	if field.MaxLength > 0 && isString && len(str) > field.MaxLength {
		return &domain.FieldError{
			Code:    domain.ErrCodeMaxLength,
			Message: fmt.Sprintf("field %s exceeds maximum length %d", field.Name, field.MaxLength),
		}
	}

	if len(field.Choices) > 0 && isString {
		found := false
		for _, choice := range field.Choices {
			if str == choice {
				found = true
				break
			}
		}
		if !found {
			return &domain.FieldError{
				Code:    domain.ErrCodeChoice,
				Message: fmt.Sprintf("field %s value %q is not a valid choice", field.Name, str),
			}
		}
	}

	if pattern, ok := v.patterns[field.Name]; ok && isString {
		if !pattern.MatchString(str) {
			return &domain.FieldError{
				Code:    domain.ErrCodePattern,
				Message: fmt.Sprintf("field %s value %q does not match the required pattern", field.Name, str),
			}
		}
	}

	return nil
}

// checkUniqueness consults the store for the effective uniqueness key and for
// every per-field unique flag. A key whose fields did not all coerce is
// skipped, matching form-style validation where uniqueness only runs over
// clean values.
func (v *RowValidator) checkUniqueness(ctx context.Context, fields map[string]any, rowErr *domain.RowError) error {
	if key := v.desc.UniqueKey; len(key) > 0 {
		values, complete := collectKeyValues(fields, key)
		if complete {
			_, err := v.store.FindByKey(ctx, v.schema.OrganizationID, v.schema.ID, key, values)
			switch {
			case err == nil:
				rowErr.AddNonFieldError(domain.FieldError{
					Code:      domain.ErrCodeUnique,
					Message:   fmt.Sprintf("a record with the same %s already exists", strings.Join(key, ", ")),
					KeyFields: append([]string(nil), key...),
				})
			case !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("uniqueness lookup failed: %w", err)
			}
		}
	}

	for _, field := range v.desc.Fields {
		if !field.Unique || containsField(v.desc.UniqueKey, field.Name) {
			continue
		}
		value, ok := fields[field.Name]
		if !ok {
			continue
		}
		_, err := v.store.FindByKey(ctx, v.schema.OrganizationID, v.schema.ID, []string{field.Name}, []any{value})
		switch {
		case err == nil:
			rowErr.AddFieldError(field.Name, domain.FieldError{
				Code:      domain.ErrCodeUnique,
				Message:   fmt.Sprintf("a record with the same %s already exists", field.Name),
				KeyFields: []string{field.Name},
			})
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("uniqueness lookup failed: %w", err)
		}
	}

	return nil
}

func collectKeyValues(fields map[string]any, key []string) ([]any, bool) {
	values := make([]any, len(key))
	for i, name := range key {
		value, ok := fields[name]
		if !ok {
			return nil, false
		}
		values[i] = value
	}
	return values, true
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

func coerceValue(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeString, domain.FieldTypeRecordRef:
		return raw, nil
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to float", raw)
	case domain.FieldTypeBoolean:
		value := strings.ToLower(strings.TrimSpace(raw))
		switch value {
		case "1", "yes", "y":
			return true, nil
		case "0", "no", "n":
			return false, nil
		}
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
		}
		return boolVal, nil
	case domain.FieldTypeTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to timestamp: %w", raw, err)
		}
		return ts, nil
	case domain.FieldTypeJSON:
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("invalid json payload: %w", err)
		}
		return out, nil
	default:
		// Fallback for unknown types; best effort interpretation.
		return raw, nil
	}
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
