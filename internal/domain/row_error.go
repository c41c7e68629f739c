package domain

import (
	"fmt"
	"strings"
)

// Field error codes reported by the row validator.
const (
	ErrCodeRequired  = "required"
	ErrCodeType      = "type"
	ErrCodeMaxLength = "max_length"
	ErrCodeChoice    = "choice"
	ErrCodePattern   = "pattern"
	ErrCodeUnique    = "unique"
	// ErrCodeNotFound marks a row whose uniqueness conflict could not be
	// resolved to a stored record.
	ErrCodeNotFound = "not_found"
)

// FieldError is one structured validation failure on a field.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// KeyFields names the violated uniqueness key for ErrCodeUnique errors.
	KeyFields []string `json:"key_fields,omitempty"`
}

// RowError collects everything reported about one rejected source row. It
// carries the originating raw values so the caller can re-render the row for
// correction and resubmission.
type RowError struct {
	RowNumber   int                     `json:"row_number"`
	Raw         map[string]string       `json:"raw"`
	FieldErrors map[string][]FieldError `json:"field_errors,omitempty"`
	NonField    []FieldError            `json:"non_field_errors,omitempty"`
}

// NewRowError starts an empty error report for the given raw row.
func NewRowError(raw RawRecord) *RowError {
	return &RowError{
		RowNumber:   raw.RowNumber,
		Raw:         raw.Values,
		FieldErrors: map[string][]FieldError{},
	}
}

// AddFieldError records a failure against one field.
func (e *RowError) AddFieldError(field string, ferr FieldError) {
	if e.FieldErrors == nil {
		e.FieldErrors = map[string][]FieldError{}
	}
	e.FieldErrors[field] = append(e.FieldErrors[field], ferr)
}

// AddNonFieldError records a failure not attributable to a single field.
func (e *RowError) AddNonFieldError(ferr FieldError) {
	e.NonField = append(e.NonField, ferr)
}

// HasErrors reports whether anything has been recorded.
func (e *RowError) HasErrors() bool {
	return len(e.FieldErrors) > 0 || len(e.NonField) > 0
}

// UniqueOnly reports whether every recorded error is a uniqueness-constraint
// violation. Such rows route to the update path instead of the error list.
func (e *RowError) UniqueOnly() bool {
	if !e.HasErrors() {
		return false
	}
	for _, errs := range e.FieldErrors {
		for _, ferr := range errs {
			if ferr.Code != ErrCodeUnique {
				return false
			}
		}
	}
	for _, ferr := range e.NonField {
		if ferr.Code != ErrCodeUnique {
			return false
		}
	}
	return true
}

// ViolatedKey returns the key fields of the first uniqueness violation.
func (e *RowError) ViolatedKey() []string {
	for _, ferr := range e.NonField {
		if ferr.Code == ErrCodeUnique {
			return ferr.KeyFields
		}
	}
	for _, errs := range e.FieldErrors {
		for _, ferr := range errs {
			if ferr.Code == ErrCodeUnique {
				return ferr.KeyFields
			}
		}
	}
	return nil
}

// Error implements error with a compact summary of the recorded failures.
func (e *RowError) Error() string {
	var parts []string
	for field, errs := range e.FieldErrors {
		for _, ferr := range errs {
			parts = append(parts, fmt.Sprintf("%s: %s", field, ferr.Message))
		}
	}
	for _, ferr := range e.NonField {
		parts = append(parts, ferr.Message)
	}
	return fmt.Sprintf("row %d: %s", e.RowNumber, strings.Join(parts, "; "))
}
